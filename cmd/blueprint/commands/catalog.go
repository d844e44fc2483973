package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/blueprint/pkg/catalog"
	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/mgmt"
	"github.com/openfroyo/blueprint/pkg/spec"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog inspection and management",
		Long: `Inspect the catalog and register new items.

The catalog holds the items of the bootstrap catalog document plus any
items added at runtime. With persistence enabled, runtime additions are
stored and restored on the next start.`,
	}

	cmd.AddCommand(newCatalogListCommand())
	cmd.AddCommand(newCatalogAddCommand())
	cmd.AddCommand(newCatalogShowCommand())
	cmd.AddCommand(newCatalogSpecCommand())
	cmd.AddCommand(newCatalogDumpCommand())

	return cmd
}

func newCatalogListCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog items",
		Example: `  # List all items
  blueprint catalog list

  # List policies only
  blueprint catalog list --kind policy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var pred catalog.Predicate
			if kind != "" {
				k := spec.Type(kind)
				if !k.IsValid() {
					return engine.NewInvalidArgumentError(fmt.Sprintf("unknown item kind %q", kind), nil)
				}
				pred = catalog.ByKind(k)
			}

			return withContext(cmd, func(mc *mgmt.Context) error {
				items := mc.Catalog().ListItems(pred)
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{item.ID(), string(item.Kind), item.Scope, item.DisplayName})
				}
				return printTable(cmd.OutOrStdout(), items, []string{"ID", "KIND", "SCOPE", "NAME"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only list items of this kind (entity, template, policy, configuration)")

	return cmd
}

func newCatalogAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add FILE",
		Short: "Add the items of a catalog document",
		Long: `Parse a catalog document and register every item it declares.

Either all items are added or none. Items are checked against the
admission policies when policies are enabled.`,
		Example: `  blueprint catalog add ./web-server.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filepath.Clean(args[0]))
			if err != nil {
				return fmt.Errorf("failed to read catalog document: %w", err)
			}

			return withContext(cmd, func(mc *mgmt.Context) error {
				items, err := mc.Catalog().AddItems(cmd.Context(), string(data))
				if err != nil {
					return err
				}
				for _, item := range items {
					log.Info().Str("item", item.ID()).Msg("Added catalog item")
				}
				if jsonOutput {
					return printValue(cmd.OutOrStdout(), items)
				}
				for _, item := range items {
					fmt.Fprintln(cmd.OutOrStdout(), item.ID())
				}
				return nil
			})
		},
	}

	return cmd
}

func newCatalogShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a catalog item",
		Example: `  blueprint catalog show web-server:1.0.0

  # Latest version of a symbolic name
  blueprint catalog show web-server`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, func(mc *mgmt.Context) error {
				item, err := lookupItem(mc, args[0])
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), item)
			})
		},
	}

	return cmd
}

// specView is the printed form of a created spec.
type specView struct {
	ID          string                 `json:"id" yaml:"id"`
	Name        string                 `json:"name" yaml:"name"`
	Type        spec.Type              `json:"type" yaml:"type"`
	TypeRef     string                 `json:"type_ref,omitempty" yaml:"typeRef,omitempty"`
	CatalogItem string                 `json:"catalog_item" yaml:"catalogItem"`
	Config      map[string]interface{} `json:"config" yaml:"config"`
}

func newCatalogSpecCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec ID",
		Short: "Create the spec of a catalog item and print its resolved config",
		Long: `Create the spec of a catalog item and resolve every deferred value in
its configuration, including external config lookups.`,
		Example: `  blueprint catalog spec web-server:1.0.0`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, func(mc *mgmt.Context) error {
				item, err := lookupItem(mc, args[0])
				if err != nil {
					return err
				}
				s, cfg, err := mc.CreateSpec(cmd.Context(), item.ID())
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), specView{
					ID:          s.ID(),
					Name:        s.DisplayName(),
					Type:        s.Type(),
					TypeRef:     s.TypeRef(),
					CatalogItem: s.CatalogItemID(),
					Config:      cfg,
				})
			})
		},
	}

	return cmd
}

func newCatalogDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump the catalog registry tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, func(mc *mgmt.Context) error {
				out, err := mc.Catalog().Serialize()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			})
		},
	}

	return cmd
}

// lookupItem finds an item by exact id, falling back to the latest version
// of a symbolic name.
func lookupItem(mc *mgmt.Context, id string) (catalog.Item, error) {
	if item, ok := mc.Catalog().GetItem(id); ok {
		return item, nil
	}
	if item, ok := mc.Catalog().GetLatest(id); ok {
		return item, nil
	}
	return catalog.Item{}, engine.NewNotFoundError(fmt.Sprintf("no catalog item %s", id), nil).WithSubject(id)
}
