package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/blueprint/pkg/mgmt"
	"github.com/openfroyo/blueprint/pkg/providers/external"
)

type providerView struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func newProvidersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the external config providers",
		Long: `List the external config providers declared in the configuration.

Providers are declared as external.<name> = <type> with their settings
under external.<name>.<key>.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, func(mc *mgmt.Context) error {
				names := mc.Registry().Names()
				views := make([]providerView, 0, len(names))
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					p, _ := mc.Registry().Get(name)
					v := providerView{Name: name, Type: providerType(p)}
					views = append(views, v)
					rows = append(rows, []string{v.Name, v.Type})
				}
				return printTable(cmd.OutOrStdout(), views, []string{"NAME", "TYPE"}, rows)
			})
		},
	}

	return cmd
}

func providerType(p external.Provider) string {
	cached := ""
	if c, ok := p.(*external.CachedProvider); ok {
		p = c.Unwrap()
		cached = " (cached)"
	}
	switch p.(type) {
	case *external.InPlaceProvider:
		return external.TypeInPlace + cached
	case *external.EnvProvider:
		return external.TypeEnv + cached
	case *external.FileProvider:
		return external.TypeFile + cached
	default:
		return fmt.Sprintf("%T%s", p, cached)
	}
}
