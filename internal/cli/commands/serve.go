package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/sqlpreview/internal/cli/config"
	"github.com/leapstack-labs/sqlpreview/internal/compiler"
	"github.com/leapstack-labs/sqlpreview/internal/host"
	"github.com/leapstack-labs/sqlpreview/internal/preview"
	"github.com/leapstack-labs/sqlpreview/internal/state"
	"github.com/leapstack-labs/sqlpreview/internal/surface"
	"github.com/leapstack-labs/sqlpreview/internal/surface/resources"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewServeCommand creates the serve command.
func NewServeCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the preview host for an editor",
		Long: `Run the preview host.

The editor talks to the host over stdin/stdout using JSON-RPC with
Content-Length framing. Previews are served over HTTP from --host and
--port; the editor is asked to open each new preview page.`,
		Example: `  # Started by an editor extension
  sqlpreview serve

  # Fixed port and a custom compiler
  sqlpreview serve --port 7878 --compiler /usr/local/bin/prqlc`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version)
		},
	}

	cmd.Flags().String("host", "", "Address the preview pages are served on")
	cmd.Flags().Int("port", 0, "Port the preview pages are served on (0 picks one)")
	cmd.Flags().Duration("debounce", 0, "Delay before re-rendering after a change")
	cmd.Flags().Duration("timeout", 0, "Compiler timeout")

	return cmd
}

func runServe(cmd *cobra.Command, version string) error {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	store, closeStore := openState(cfg.StatePath, logger)
	defer closeStore()

	watcher, err := host.NewWatcher(0, logger)
	if err != nil {
		return err
	}

	hub := surface.NewHub(surface.Config{Logger: logger})
	srv := surface.NewServer(surface.ServerConfig{
		Hub:    hub,
		Host:   cfg.UI.Host,
		Port:   cfg.UI.Port,
		Logger: logger,
	})
	if _, err := srv.Listen(); err != nil {
		return err
	}

	var manager *preview.Manager
	bridge := host.NewServer(host.Config{
		Reader:     cmd.InOrStdin(),
		Writer:     cmd.OutOrStdout(),
		State:      store,
		Watcher:    watcher,
		Theme:      cfg.Preview.Theme,
		OnShutdown: func() { manager.Close() },
		Version:    version,
		Logger:     logger,
	})
	hub.SetOpener(bridge.ShowDocument)

	pcfg := preview.Config{
		Host:     bridge,
		Surfaces: hub,
		Compiler: compiler.NewExec(compiler.ExecConfig{
			Command: cfg.Compiler.Command,
			Args:    cfg.Compiler.Args,
			Timeout: cfg.Compiler.Timeout,
			Logger:  logger,
		}),
		Assets:   resources.FS(),
		Debounce: cfg.Preview.Debounce,
		Logger:   logger,
	}
	if store != nil {
		pcfg.State = store
	}
	manager = preview.NewManager(pcfg)
	bridge.SetPreviewer(manager)
	defer manager.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	eg, egctx := errgroup.WithContext(ctx)

	// The editor going away ends the session.
	eg.Go(func() error {
		defer cancel()
		return bridge.Run(egctx)
	})
	eg.Go(func() error {
		return srv.Serve(egctx)
	})
	eg.Go(func() error {
		return watcher.Run(egctx)
	})

	return eg.Wait()
}

// openState opens the workspace state database. Previews work without it,
// so failures are logged and a nil store is returned.
func openState(path string, logger *slog.Logger) (state.Store, func()) {
	noop := func() {}
	if path == "" {
		return nil, noop
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				logger.Warn("state disabled", "error", fmt.Errorf("failed to create state directory: %w", err))
				return nil, noop
			}
		}
	}

	store := state.NewSQLiteStore("", logger)
	if err := store.Open(path); err != nil {
		logger.Warn("state disabled", "path", path, "error", err)
		return nil, noop
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close state", "error", err)
		}
	}
}
