package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saorsa-labs/fae/pkg/core"
	"github.com/saorsa-labs/fae/pkg/host"
)

var (
	serveConfig  string
	serveDataDir string
	serveListen  string
)

// withDataDir overlays a data_dir onto a runtime config JSON document.
// The flag wins over any data_dir already present in --config.
func withDataDir(configJSON, dir string) (string, error) {
	if dir == "" {
		return configJSON, nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(configJSON), &doc); err != nil {
		return "", fmt.Errorf("parse --config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	doc["data_dir"] = dir
	merged, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(merged), nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the runtime behind a stdio bridge",
	Long: `Run the runtime and bridge its command channel to stdin/stdout as
line-delimited JSON: one command envelope per input line, one response
envelope per output line, with pending events flushed after each
response. A runtime.stop command (or EOF) shuts the bridge down.

With --listen, the same channel is also exposed over a websocket at
ws://<addr>/v1/channel. The two transports share one runtime and one
event stream: while a websocket client is connected it owns the event
callback slot, so events for commands issued over stdio are delivered to
the websocket connection instead of the stdio output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfgJSON, err := withDataDir(serveConfig, serveDataDir)
		if err != nil {
			return err
		}
		rt, err := core.Open(cfgJSON)
		if err != nil {
			return err
		}
		defer rt.Close()
		if err := rt.Start(); err != nil {
			return err
		}

		log := host.SlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

		if serveListen != "" {
			bridge := host.NewWSBridge(rt, log)
			go func() {
				if err := bridge.ListenAndServe(ctx, serveListen); err != nil &&
					!errors.Is(err, context.Canceled) {
					log.ErrorPrintf("websocket bridge: %v", err)
				}
			}()
		}

		return host.RunStdioBridge(ctx, rt, os.Stdin, os.Stdout, log)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfig, "config", "{}", "runtime config JSON")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "directory for persistent state (overrides data_dir in --config)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "also serve a websocket channel on this address")
	rootCmd.AddCommand(serveCmd)
}
