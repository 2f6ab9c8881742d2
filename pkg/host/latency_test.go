package host

import (
	"testing"
	"time"
)

func TestBenches(t *testing.T) {
	cfg := BenchConfig{Samples: 50, PayloadBytes: 64}

	runs := map[string]func(BenchConfig) (*BenchReport, error){
		"noop_dispatch":      RunNoopDispatchBench,
		"channel_roundtrip":  RunChannelRoundtripBench,
		"boundary_roundtrip": RunBoundaryRoundtripBench,
	}
	for scenario, run := range runs {
		t.Run(scenario, func(t *testing.T) {
			report, err := run(cfg)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if report.Scenario != scenario {
				t.Errorf("scenario = %s; want %s", report.Scenario, scenario)
			}
			if report.Samples != cfg.Samples || report.PayloadBytes != cfg.PayloadBytes {
				t.Errorf("report = %+v", report)
			}
			if report.P50Micros > report.P95Micros || report.P95Micros > report.P99Micros {
				t.Errorf("percentiles not monotonic: %+v", report)
			}
		})
	}
}

func TestBenchConfig_Validate(t *testing.T) {
	if _, err := RunNoopDispatchBench(BenchConfig{Samples: 0}); err == nil {
		t.Error("zero samples accepted")
	}
	if _, err := RunNoopDispatchBench(BenchConfig{Samples: 10, PayloadBytes: -1}); err == nil {
		t.Error("negative payload accepted")
	}
}

func TestPercentileMicros(t *testing.T) {
	sorted := []time.Duration{
		1 * time.Microsecond,
		2 * time.Microsecond,
		3 * time.Microsecond,
		4 * time.Microsecond,
	}
	if got := percentileMicros(sorted, 50); got != 3 {
		t.Errorf("p50 = %d; want 3", got)
	}
	if got := percentileMicros(sorted, 99); got != 4 {
		t.Errorf("p99 = %d; want 4", got)
	}
	if got := percentileMicros(nil, 50); got != 0 {
		t.Errorf("p50 of empty = %d; want 0", got)
	}
}
