package cli

import (
	"fmt"
	"strconv"

	"github.com/p-n-ai/study-tracker/internal/curriculum"
	"github.com/p-n-ai/study-tracker/internal/progress"
	"github.com/p-n-ai/study-tracker/internal/reconcile"
	"github.com/spf13/cobra"
)

type ledgerEntry struct {
	Key    string          `json:"key"`
	Exists bool            `json:"exists"`
	Record progress.Record `json:"record"`
}

func newShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <subtopicId>",
		Short: "Print the stored ledger record of a subtopic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := progress.Key(args[0])
			if err != nil {
				return err
			}
			l, err := app.Ledger(cmd.Context())
			if err != nil {
				return err
			}
			rec, ok, err := l.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ledgerEntry{Key: key, Exists: ok, Record: rec})
		},
	}
}

func newSetTargetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set-target <subtopicId> <minutes>",
		Short: "Set a subtopic's target time; remaining time is reset to match",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid minutes %q: %w", args[1], err)
			}
			return editSubtopic(cmd, app, args[0], func(r *reconcile.Reconciler, a curriculum.Address) (reconcile.SubtopicView, error) {
				return r.UpdateTargetTime(cmd.Context(), a.SubjectID, a.TopicID, a.SubtopicID, minutes)
			})
		},
	}
}

func newSetProgressCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set-progress <subtopicId> <status>",
		Short: `Set a subtopic's progress ("Not Started", "In Progress", "Completed")`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editSubtopic(cmd, app, args[0], func(r *reconcile.Reconciler, a curriculum.Address) (reconcile.SubtopicView, error) {
				return r.UpdateProgress(cmd.Context(), a.SubjectID, a.TopicID, a.SubtopicID, args[1])
			})
		},
	}
}

// editSubtopic runs one edit through the reconciler so an absent record is
// seeded from the curriculum baseline like an edit made in the UI.
func editSubtopic(cmd *cobra.Command, app *App, subtopicID string, edit func(*reconcile.Reconciler, curriculum.Address) (reconcile.SubtopicView, error)) error {
	store, err := openCurriculum(app)
	if err != nil {
		return err
	}
	addr, ok := store.Locate(subtopicID)
	if !ok {
		return fmt.Errorf("subtopic %q: %w", subtopicID, curriculum.ErrNotFound)
	}
	l, err := app.Ledger(cmd.Context())
	if err != nil {
		return err
	}

	view, err := edit(reconcile.New(store, l), addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: progress=%q target=%dm remaining=%ds\n",
		view.ID, view.Progress, view.TargetTime, view.RemainingTime)
	return nil
}
