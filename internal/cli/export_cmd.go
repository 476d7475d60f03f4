package cli

import (
	"fmt"
	"os"

	"github.com/p-n-ai/study-tracker/internal/reconcile"
	"github.com/p-n-ai/study-tracker/internal/report"
	"github.com/spf13/cobra"
)

func newExportCmd(app *App) *cobra.Command {
	var priorities []string
	var months int

	cmd := &cobra.Command{
		Use:   "export <out.xlsx>",
		Short: "Write the merged progress view to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCurriculum(app)
			if err != nil {
				return err
			}
			l, err := app.Ledger(cmd.Context())
			if err != nil {
				return err
			}

			session := reconcile.NewSession()
			if len(priorities) > 0 {
				if err := session.Complete(priorities, months); err != nil {
					return err
				}
			}
			view, err := reconcile.New(store, l, reconcile.WithSession(session)).BuildView(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("creating %s: %w", args[0], err)
			}
			if err := report.WriteWorkbook(f, view); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", args[0], err)
			}

			if view.Degraded {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: some ledger reads failed; baseline values were exported for them")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d subjects)\n", args[0], len(view.Subjects))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&priorities, "priority", nil, "Priority subject (repeatable, up to 3)")
	cmd.Flags().IntVar(&months, "months", reconcile.MinCompletionMonths, "Completion horizon in months")
	return cmd
}
