package generate

import "sort"

// builtinAliases maps the short model keys shipped with aish to backend
// identifiers.
var builtinAliases = map[string]string{
	"llama": "hf.co/saisasanky/Llama-3.1-8B-Instruct-4bit-aish_gguf",
	"qwen":  "qwen2.5-coder:7b",
}

// AliasTable maps short model keys to fully-qualified backend identifiers.
// It is built once and never mutated, so concurrent lookups are safe.
type AliasTable struct {
	m map[string]string
}

// DefaultAliases returns a table holding only the built-in aliases.
func DefaultAliases() *AliasTable {
	return NewAliasTable(nil)
}

// NewAliasTable returns the built-in aliases overlaid with extra. Entries
// with an empty identifier are ignored.
func NewAliasTable(extra map[string]string) *AliasTable {
	m := make(map[string]string, len(builtinAliases)+len(extra))
	for k, v := range builtinAliases {
		m[k] = v
	}
	for k, v := range extra {
		if k == "" || v == "" {
			continue
		}
		m[k] = v
	}
	return &AliasTable{m: m}
}

// Resolve returns the identifier for key, or key itself when it is not an
// alias.
func (t *AliasTable) Resolve(key string) string {
	if id, ok := t.m[key]; ok {
		return id
	}
	return key
}

// Lookup reports the identifier mapped to key.
func (t *AliasTable) Lookup(key string) (string, bool) {
	id, ok := t.m[key]
	return id, ok
}

// Keys returns the alias keys in sorted order.
func (t *AliasTable) Keys() []string {
	keys := make([]string, 0, len(t.m))
	for k := range t.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the table.
func (t *AliasTable) Map() map[string]string {
	out := make(map[string]string, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}
