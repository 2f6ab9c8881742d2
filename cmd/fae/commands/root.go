package commands

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "fae",
	Short: "Embeddable fae runtime",
	Long: `fae - the fae runtime behind its embedding boundary.

The runtime is normally linked into a native shell as libfae (see
cmd/libfae and include/fae.h). This CLI drives the same boundary from
the command line for development:

  serve    run the runtime behind a line-delimited JSON stdio bridge,
           optionally also exposing a websocket channel
  bench    measure boundary dispatch latency

Examples:
  # Talk to the runtime over stdin/stdout
  echo '{"v":1,"request_id":"r1","command":"host.ping"}' | fae serve

  # Persist scheduler tasks and config under a data directory
  fae serve --data-dir /var/lib/fae

  # Expose the websocket channel as well
  fae serve --listen 127.0.0.1:8732`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
