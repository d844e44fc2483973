package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/mgmt"
	"github.com/openfroyo/blueprint/pkg/stores"
)

func newTasksCommand() *cobra.Command {
	var (
		status string
		limit  int
		prune  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Show the persisted task history",
		Long: `Show the history of non-transient tasks. Requires database.enabled.`,
		Example: `  blueprint tasks --status failed --limit 20

  # Drop history older than a week
  blueprint tasks --prune 168h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd, func(mc *mgmt.Context) error {
				store := mc.Store()
				if store == nil {
					return engine.NewUnsupportedError("task history requires database.enabled", nil)
				}

				if prune > 0 {
					n, err := store.PruneTaskHistory(cmd.Context(), time.Now().Add(-prune))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d task records\n", n)
					return nil
				}

				filter := stores.TaskFilter{Limit: limit}
				if status != "" {
					s := engine.TaskStatus(status)
					filter.Status = &s
				}
				records, err := store.ListTaskRecords(cmd.Context(), filter)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, []string{r.ID, r.DisplayName, string(r.Status), r.Duration().String()})
				}
				return printTable(cmd.OutOrStdout(), records, []string{"ID", "TASK", "STATUS", "DURATION"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show tasks with this status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete records completed longer ago than this")

	return cmd
}
