package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/saorsa-labs/fae/pkg/host"
)

var (
	benchSamples int
	benchPayload int
	benchJSON    bool
)

var (
	benchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	benchLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure boundary dispatch latency",
	Long: `Measure dispatch latency across three scenarios:

  noop_dispatch       in-process floor, no channel or backend
  channel_roundtrip   one goroutine channel hop with the payload
  boundary_roundtrip  full SendCommand path against a no-op backend`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := host.BenchConfig{Samples: benchSamples, PayloadBytes: benchPayload}

		runs := []func(host.BenchConfig) (*host.BenchReport, error){
			host.RunNoopDispatchBench,
			host.RunChannelRoundtripBench,
			host.RunBoundaryRoundtripBench,
		}
		var reports []*host.BenchReport
		for _, run := range runs {
			report, err := run(cfg)
			if err != nil {
				return err
			}
			reports = append(reports, report)
		}

		if benchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}

		fmt.Println(benchTitleStyle.Render("boundary latency") +
			benchLabelStyle.Render(fmt.Sprintf("  %d samples, %dB payload", cfg.Samples, cfg.PayloadBytes)))
		fmt.Printf("%-20s %10s %10s %10s\n", "scenario", "p50", "p95", "p99")
		for _, r := range reports {
			fmt.Printf("%-20s %9dµ %9dµ %9dµ\n",
				r.Scenario, r.P50Micros, r.P95Micros, r.P99Micros)
		}
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchSamples, "samples", 1000, "timing samples per scenario")
	benchCmd.Flags().IntVar(&benchPayload, "payload", 256, "payload size in bytes")
	benchCmd.Flags().BoolVar(&benchJSON, "json", false, "emit reports as JSON")
	rootCmd.AddCommand(benchCmd)
}
