package cli

import (
	"fmt"

	"github.com/p-n-ai/study-tracker/internal/curriculum"
	"github.com/spf13/cobra"
)

func newValidateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a curriculum document against the schema and id rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.CurriculumPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no curriculum file given")
			}

			subjects, err := curriculum.LoadFile(path)
			if err != nil {
				return err
			}
			store, err := curriculum.NewStore(subjects)
			if err != nil {
				return err
			}

			var topics, subtopics int
			for _, s := range subjects {
				topics += len(s.Topics)
				for _, t := range s.Topics {
					subtopics += len(t.Subtopics)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d subjects, %d topics, %d subtopics (version %s)\n",
				path, len(subjects), topics, subtopics, store.Version())
			return nil
		},
	}
}

func newSearchCmd(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find subjects, topics and subtopics by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCurriculum(app)
			if err != nil {
				return err
			}
			res := store.Search(args[0])
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			for _, s := range res.Subjects {
				fmt.Fprintf(out, "subject   %-10s %s\n", s.SubjectID, s.Subject)
			}
			for _, t := range res.Topics {
				fmt.Fprintf(out, "topic     %-10s %s / %s\n", t.TopicID, t.Subject, t.Title)
			}
			for _, st := range res.Subtopics {
				fmt.Fprintf(out, "subtopic  %-10s %s / %s / %s\n", st.SubtopicID, st.Subject, st.TopicTitle, st.Title)
			}
			if len(res.Subjects)+len(res.Topics)+len(res.Subtopics) == 0 {
				fmt.Fprintln(out, "no matches")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}
