package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/log"
	"github.com/zjrosen/sift/internal/presentation"
	"github.com/zjrosen/sift/internal/progress"
	"github.com/zjrosen/sift/internal/pubsub"
	"github.com/zjrosen/sift/internal/research"
	"github.com/zjrosen/sift/internal/ui/answer"
	"github.com/zjrosen/sift/internal/ui/progressview"
	"github.com/zjrosen/sift/internal/ui/styles"
)

var (
	askNoStream bool
	askNoCache  bool
	askPlain    bool
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a research question",
	Long: `Ask a research question and print the answer.

On a terminal the pipeline is shown live; elsewhere (or with --plain) each
stage change is printed as a line on stderr. Ctrl+C cancels the run, which is
still recorded in history.

Examples:
  sift ask "Does vitamin D reduce fracture risk?"
  sift ask --no-stream "Does vitamin D reduce fracture risk?"
  sift ask --json "Does vitamin D reduce fracture risk?" | jq .synthesis`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	addAskFlags(askCmd)
	rootCmd.AddCommand(askCmd)
}

func addAskFlags(c *cobra.Command) {
	c.Flags().BoolVar(&askNoStream, "no-stream", false, "use the non-streaming endpoint (no live progress)")
	c.Flags().BoolVar(&askNoCache, "no-cache", false, "ignore and do not store cached answers")
	c.Flags().BoolVar(&askPlain, "plain", false, "print progress lines instead of the live view")
	c.Flags().BoolVar(&askJSON, "json", false, "print the run and raw result as JSON")
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func terminalWidth(f *os.File) int {
	if w, _, err := term.GetSize(f.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	opts := research.AskOptions{
		Direct:  askNoStream || !cfg.Stream.Enabled,
		NoCache: askNoCache,
	}
	interactive := !opts.Direct && !askPlain && !cfg.UI.Plain && !askJSON &&
		isTerminal(os.Stdout) && isTerminal(os.Stderr)

	var run *history.Run
	if interactive {
		run, err = askInteractive(ctx, svc, question, opts)
	} else {
		run, err = askPlainly(ctx, svc, question, opts, cmd.ErrOrStderr())
	}
	if run == nil {
		return err
	}

	return printRun(cmd.OutOrStdout(), run, err)
}

// askPlainly prints stage transitions to w while the run progresses.
func askPlainly(ctx context.Context, svc *services, question string, opts research.AskOptions, w io.Writer) (*history.Run, error) {
	subCtx, cancel := context.WithCancel(context.Background())
	updates := svc.broker.Subscribe(subCtx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		prev := progress.NewState()
		for ev := range updates {
			if ev.Payload.State.Stages == nil {
				continue
			}
			for _, line := range progressview.Transitions(prev, ev.Payload.State) {
				_, _ = fmt.Fprintln(w, line)
			}
			prev = ev.Payload.State
			if ev.Type == pubsub.RunFinished {
				return
			}
		}
	}()

	run, err := svc.runner.Ask(ctx, question, opts)
	cancel()
	wg.Wait()
	return run, err
}

// askInteractive shows the live view while the run executes in the
// background. Ctrl+C cancels the run; the view stays up until the cancelled
// run is recorded.
func askInteractive(ctx context.Context, svc *services, question string, opts research.AskOptions) (*history.Run, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	viewCtx, closeView := context.WithCancel(context.Background())
	defer closeView()

	model := progressview.New(progressview.Config{
		Question: question,
		Updates:  pubsub.NewContinuousListener(viewCtx, svc.broker),
		Logs:     log.NewListener(viewCtx),
		Cancel:   cancelRun,
	})

	type result struct {
		run *history.Run
		err error
	}
	done := make(chan result, 1)
	go func() {
		run, err := svc.runner.Ask(runCtx, question, opts)
		done <- result{run, err}
	}()

	p := tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.ErrorErr(log.CatUI, "Progress view failed", err)
	}

	select {
	case r := <-done:
		return r.run, r.err
	default:
	}
	// The view quit first; the run must still end and be recorded.
	cancelRun()
	r := <-done
	return r.run, r.err
}

func printRun(w io.Writer, run *history.Run, runErr error) error {
	if askJSON {
		if err := presentation.NewFormatter(w).FormatRun(presentation.FromDomainRun(run, true)); err != nil {
			return err
		}
		return runErr
	}

	if runErr != nil {
		switch run.Outcome {
		case progress.KindCancelled:
			return fmt.Errorf("cancelled (run %s)", run.ID)
		case progress.KindIncomplete:
			return fmt.Errorf("the service stopped before finishing (run %s): %w", run.ID, runErr)
		default:
			return runErr
		}
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
	if run.CacheHit {
		_, _ = fmt.Fprintln(w, styles.MutedStyle.Render("(cached answer; use --no-cache to ask again)"))
	}
	return nil
}
