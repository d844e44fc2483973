package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/blueprint/pkg/dsl"
	"github.com/openfroyo/blueprint/pkg/mgmt"
)

func newResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve EXPR",
		Short: "Resolve a DSL expression",
		Long: `Parse a DSL expression and resolve it through the task scheduler.

The expression may carry the $dsl: prefix used in catalog documents.`,
		Example: `  blueprint resolve 'external("vault", "db.password")'
  blueprint resolve '$dsl:external("env", "home").toUpperCase()'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := strings.TrimPrefix(args[0], dsl.Prefix)

			return withContext(cmd, func(mc *mgmt.Context) error {
				value, err := mc.Resolve(cmd.Context(), expr)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printValue(cmd.OutOrStdout(), map[string]interface{}{
						"expression": expr,
						"value":      value,
					})
				}
				if value == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "null")
					return nil
				}
				if s, ok := value.(string); ok {
					fmt.Fprintln(cmd.OutOrStdout(), s)
					return nil
				}
				return printValue(cmd.OutOrStdout(), value)
			})
		},
	}

	return cmd
}
