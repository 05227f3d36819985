package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/presentation"
	"github.com/zjrosen/sift/internal/progress"
	"github.com/zjrosen/sift/internal/ui/answer"
	"github.com/zjrosen/sift/internal/ui/progressview"
	"github.com/zjrosen/sift/internal/ui/styles"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		repo, closeDB, err := historyRepository()
		if err != nil {
			return err
		}
		defer closeDB()

		runs, err := repo.List(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if historyJSON {
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatRuns(presentation.FromDomainRuns(runs))
		}
		if len(runs) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
			return nil
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderRunTable(runs, terminalWidth(os.Stdout)))
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run: its final pipeline state and answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeDB, err := historyRepository()
		if err != nil {
			return err
		}
		defer closeDB()

		run, err := repo.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if historyJSON {
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatRun(presentation.FromDomainRun(run, true))
		}
		return showRun(cmd.OutOrStdout(), run)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>...",
	Short: "Delete recorded runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeDB, err := historyRepository()
		if err != nil {
			return err
		}
		defer closeDB()

		var errs []error
		for _, id := range args {
			if err := repo.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, err)
				continue
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "print JSON")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list (0 for all)")
	historyCmd.AddCommand(historyShowCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyRepository() (history.RunRepository, func(), error) {
	if !cfg.History.Enabled {
		return nil, nil, errors.New("history is disabled (history.enabled: false)")
	}
	db, err := openHistory()
	if err != nil {
		return nil, nil, err
	}
	return db.RunRepository(), func() { _ = db.Close() }, nil
}

func outcomeStyle(kind progress.OutcomeKind) lipgloss.Style {
	switch kind {
	case progress.KindSucceeded:
		return styles.SuccessStyle
	case progress.KindCancelled, progress.KindIncomplete:
		return styles.WarningStyle
	default:
		return styles.FailedStyle
	}
}

func renderRunTable(runs []*history.Run, width int) string {
	// id, when, outcome and duration take about 60 cells with borders.
	questionWidth := max(width-60, 20)
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		outcome := string(run.Outcome)
		if run.CacheHit {
			outcome += " (cached)"
		}
		rows = append(rows, []string{
			run.ID[:min(8, len(run.ID))],
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			runewidth.Truncate(run.Question, questionWidth, "…"),
			outcome,
			run.Duration().Round(100 * time.Millisecond).String(),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.MutedStyle).
		Headers("ID", "STARTED", "QUESTION", "OUTCOME", "TOOK").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.TitleStyle.Padding(0, 1)
			}
			if col == 3 && row >= 0 && row < len(runs) {
				return outcomeStyle(runs[row].Outcome).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}

func showRun(w io.Writer, run *history.Run) error {
	_, _ = fmt.Fprintf(w, "%s\n", styles.TitleStyle.Render(run.Question))
	_, _ = fmt.Fprintf(w, "%s %s · %s · %s · %s\n\n",
		styles.MutedStyle.Render(run.ID),
		run.StartedAt.Local().Format(time.RFC1123),
		run.Mode,
		outcomeStyle(run.Outcome).Render(string(run.Outcome)),
		run.Duration().Round(100*time.Millisecond))

	if run.State != nil {
		_, _ = fmt.Fprintln(w, progressview.RenderPlain(*run.State))
		_, _ = fmt.Fprintln(w)
	}
	if run.Error != "" {
		msg := wordwrap.String("error: "+run.Error, terminalWidth(os.Stdout))
		_, _ = fmt.Fprintln(w, styles.FailedStyle.Render(msg))
	}
	if run.Payload == nil {
		return nil
	}

	out, err := answer.Render(run.Payload, answer.Options{
		Width: terminalWidth(os.Stdout),
		Style: cfg.UI.MarkdownStyle,
		Plain: !isTerminal(os.Stdout),
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(w, out)
	return nil
}
