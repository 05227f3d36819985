package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/sift/internal/log"
	"github.com/zjrosen/sift/internal/mockserver"
	"github.com/zjrosen/sift/internal/watcher"
)

var (
	mockAddr      string
	mockDelay     time.Duration
	mockScenarios string
	mockDefault   string
)

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run a scripted stand-in for the research service",
	Long: `Run a local server that speaks the research service API and replays
scripted scenarios, for trying sift without the real backend.

Built-in scenarios: standard, deep, error, truncated. Pick one per request
with the X-Mock-Scenario header or ?scenario= query parameter.

Examples:
  sift mock-server
  sift mock-server --addr localhost:9000 --delay 100ms --default deep
  sift mock-server --scenarios ./scenarios.yaml   # reloaded when the file changes`,
	Args: cobra.NoArgs,
	RunE: runMockServer,
}

func init() {
	mockServerCmd.Flags().StringVar(&mockAddr, "addr", "localhost:8000", "address to listen on")
	mockServerCmd.Flags().DurationVar(&mockDelay, "delay", 400*time.Millisecond, "pause between scenario steps")
	mockServerCmd.Flags().StringVar(&mockScenarios, "scenarios", "", "YAML file with extra scenarios")
	mockServerCmd.Flags().StringVar(&mockDefault, "default", mockserver.ScenarioStandard, "scenario used when a request names none")
	rootCmd.AddCommand(mockServerCmd)
}

func runMockServer(cmd *cobra.Command, _ []string) error {
	var extra []mockserver.Scenario
	if mockScenarios != "" {
		var err error
		extra, err = mockserver.LoadScenarios(mockScenarios)
		if err != nil {
			return err
		}
	}

	server, err := mockserver.NewServer(mockserver.ServerConfig{
		Addr: mockAddr,
		Handler: mockserver.HandlerConfig{
			Scenarios: extra,
			Default:   mockDefault,
			Delay:     mockDelay,
		},
	})
	if err != nil {
		return fmt.Errorf("creating mock server: %w", err)
	}

	if mockScenarios != "" {
		stopWatching, err := watchScenarios(server, mockScenarios, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer stopWatching()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Mock research service listening on %s\n", server.URL())
	_, _ = fmt.Fprintln(out, "Press Ctrl+C to stop")

	select {
	case sig := <-sigCh:
		_, _ = fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.ErrorErr(log.CatMock, "Error stopping mock server", err)
	}
	_, _ = fmt.Fprintln(out, "Mock server stopped")
	return nil
}

// watchScenarios reloads path into server whenever it changes. A file that
// fails to load leaves the previous scenarios in place.
func watchScenarios(server *mockserver.Server, path string, w io.Writer) (func(), error) {
	fw, err := watcher.New(watcher.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	onChange, err := fw.Start()
	if err != nil {
		_ = fw.Stop()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-onChange:
				scenarios, err := mockserver.LoadScenarios(path)
				if err != nil {
					_, _ = fmt.Fprintf(w, "keeping previous scenarios: %v\n", err)
					continue
				}
				server.SetScenarios(scenarios)
				_, _ = fmt.Fprintf(w, "reloaded %d scenarios from %s\n", len(scenarios), path)
			}
		}
	}()

	return func() {
		close(done)
		_ = fw.Stop()
	}, nil
}
