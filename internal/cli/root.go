// Package cli implements the studyctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/p-n-ai/study-tracker/internal/curriculum"
	"github.com/p-n-ai/study-tracker/internal/progress"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// App holds what the commands need. The ledger is opened on first use so
// commands that only read the curriculum work without a reachable back end.
type App struct {
	CurriculumPath string
	OpenLedger     func(ctx context.Context) (*progress.Ledger, error)

	ledger *progress.Ledger
}

// Ledger returns the ledger, opening it on the first call.
func (a *App) Ledger(ctx context.Context) (*progress.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	if a.OpenLedger == nil {
		return nil, fmt.Errorf("no ledger configured")
	}
	l, err := a.OpenLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	a.ledger = l
	return l, nil
}

// NewRootCmd creates the top-level "studyctl" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "studyctl",
		Short:         "Inspect and maintain study progress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addCurriculumFlag(root.PersistentFlags(), &app.CurriculumPath)

	root.AddCommand(
		newValidateCmd(app),
		newShowCmd(app),
		newSetTargetCmd(app),
		newSetProgressCmd(app),
		newSearchCmd(app),
		newExportCmd(app),
	)

	return root
}

func addCurriculumFlag(fs *pflag.FlagSet, path *string) {
	fs.StringVarP(path, "curriculum", "c", *path, "Curriculum document (.json, .yaml)")
}

func openCurriculum(app *App) (*curriculum.Store, error) {
	if app.CurriculumPath == "" {
		return nil, fmt.Errorf("curriculum path is required (--curriculum)")
	}
	return curriculum.Open(app.CurriculumPath)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
