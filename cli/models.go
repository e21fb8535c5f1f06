package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *App) modelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List installed models and model aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			be, done, err := a.connect()
			if err != nil {
				return err
			}
			defer done()

			ctx := cmd.Context()
			models, err := be.Catalog.Models(ctx)
			if err != nil {
				return err
			}

			aliases := be.Generator.Aliases()
			byID := make(map[string][]string)
			for _, key := range aliases.Keys() {
				id, _ := aliases.Lookup(key)
				byID[id] = append(byID[id], key)
			}

			fmt.Fprintln(a.Stdout, a.styles.label.Render("Installed models:"))
			if len(models) == 0 {
				fmt.Fprintln(a.Stdout, a.styles.muted.Render("  (none)"))
			}
			for _, m := range models {
				line := "  " + m
				if keys := byID[m]; len(keys) > 0 {
					line += a.styles.muted.Render(" (alias: " + strings.Join(keys, ", ") + ")")
				}
				fmt.Fprintln(a.Stdout, line)
			}

			fmt.Fprintln(a.Stdout)
			fmt.Fprintln(a.Stdout, a.styles.label.Render("Aliases:"))
			for _, key := range aliases.Keys() {
				id, _ := aliases.Lookup(key)
				line := fmt.Sprintf("  %s -> %s", key, id)
				if ok, err := be.Catalog.Has(ctx, id); err == nil && !ok {
					line += a.styles.muted.Render(" (not installed)")
				}
				fmt.Fprintln(a.Stdout, line)
			}
			return nil
		},
	}
}
