package backend

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultCatalogTTL is used when no positive TTL is configured.
const DefaultCatalogTTL = 5 * time.Minute

const catalogKey = "models"

// Catalog caches the backend's installed-model list for a TTL window.
type Catalog struct {
	lister Lister
	cache  *ttlcache.Cache[string, []string]
}

// NewCatalog creates a catalog over lister. Call Close to stop the
// expiration loop.
func NewCatalog(lister Lister, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	c := ttlcache.New[string, []string](
		ttlcache.WithTTL[string, []string](ttl),
		ttlcache.WithDisableTouchOnHit[string, []string](),
	)
	go c.Start()
	return &Catalog{lister: lister, cache: c}
}

// Close stops the cache expiration loop.
func (c *Catalog) Close() {
	c.cache.Stop()
}

// Models returns the sorted installed model names, querying the backend at
// most once per TTL window. Failures are not cached.
func (c *Catalog) Models(ctx context.Context) ([]string, error) {
	if item := c.cache.Get(catalogKey); item != nil {
		return slices.Clone(item.Value()), nil
	}

	models, err := c.lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(models)
	c.cache.Set(catalogKey, models, ttlcache.DefaultTTL)
	return slices.Clone(models), nil
}

// Has reports whether id is installed. Ollama's implicit ":latest" tag is
// treated as equivalent to the bare name.
func (c *Catalog) Has(ctx context.Context, id string) (bool, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return false, err
	}
	want := withLatest(id)
	for _, m := range models {
		if m == id || withLatest(m) == want {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the cached list.
func (c *Catalog) Invalidate() {
	c.cache.Delete(catalogKey)
}

func withLatest(name string) string {
	// A colon after the last slash is a tag separator; hf.co/org/repo has none.
	if strings.Contains(name[strings.LastIndex(name, "/")+1:], ":") {
		return name
	}
	return name + ":latest"
}
