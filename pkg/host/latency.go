package host

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// BenchConfig configures the boundary latency harness.
type BenchConfig struct {
	// Samples is the number of timing samples to collect.
	Samples int
	// PayloadBytes is the payload size for message-based scenarios.
	PayloadBytes int
}

func (c BenchConfig) validate() error {
	if c.Samples <= 0 {
		return fmt.Errorf("host: bench samples must be positive, got %d", c.Samples)
	}
	if c.PayloadBytes < 0 {
		return fmt.Errorf("host: bench payload bytes cannot be negative, got %d", c.PayloadBytes)
	}
	return nil
}

// BenchReport summarizes one benchmark scenario.
type BenchReport struct {
	Scenario     string `json:"scenario"`
	Samples      int    `json:"samples"`
	PayloadBytes int    `json:"payload_bytes"`
	P50Micros    int64  `json:"p50_micros"`
	P95Micros    int64  `json:"p95_micros"`
	P99Micros    int64  `json:"p99_micros"`
}

// RunNoopDispatchBench measures in-process dispatch overhead with no
// channel or backend involved: the floor every other scenario sits on.
func RunNoopDispatchBench(cfg BenchConfig) (*BenchReport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	payload := make([]byte, cfg.PayloadBytes)
	sink := 0
	samples := make([]time.Duration, 0, cfg.Samples)
	for range cfg.Samples {
		start := time.Now()
		sink += len(payload)
		samples = append(samples, time.Since(start))
	}
	_ = sink
	return buildReport("noop_dispatch", cfg, samples), nil
}

// RunChannelRoundtripBench measures a goroutine channel roundtrip with the
// configured payload size, approximating the command channel hop without
// routing.
func RunChannelRoundtripBench(cfg BenchConfig) (*BenchReport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	payload := make([]byte, cfg.PayloadBytes)
	reqCh := make(chan []byte)
	resCh := make(chan int)
	go func() {
		for msg := range reqCh {
			resCh <- len(msg)
		}
		close(resCh)
	}()

	samples := make([]time.Duration, 0, cfg.Samples)
	for range cfg.Samples {
		start := time.Now()
		reqCh <- payload
		<-resCh
		samples = append(samples, time.Since(start))
	}
	close(reqCh)
	return buildReport("channel_roundtrip", cfg, samples), nil
}

// RunBoundaryRoundtripBench measures the full SendCommand path against a
// running runtime with a no-op backend: envelope decode, channel hop,
// routing, response encode.
func RunBoundaryRoundtripBench(cfg BenchConfig) (*BenchReport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rt := NewRuntime(&Config{}, NoopHandler{}, nil)
	defer rt.Close()
	if err := rt.Start(); err != nil {
		return nil, err
	}

	cmd, err := json.Marshal(&CommandEnvelope{
		V:         ContractVersion,
		RequestID: "bench",
		Command:   CmdHostPing,
	})
	if err != nil {
		return nil, fmt.Errorf("host: marshal bench command: %w", err)
	}

	samples := make([]time.Duration, 0, cfg.Samples)
	for range cfg.Samples {
		start := time.Now()
		if _, err := rt.SendCommand(string(cmd)); err != nil {
			return nil, err
		}
		samples = append(samples, time.Since(start))
	}
	return buildReport("boundary_roundtrip", cfg, samples), nil
}

func buildReport(scenario string, cfg BenchConfig, samples []time.Duration) *BenchReport {
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return &BenchReport{
		Scenario:     scenario,
		Samples:      cfg.Samples,
		PayloadBytes: cfg.PayloadBytes,
		P50Micros:    percentileMicros(samples, 50),
		P95Micros:    percentileMicros(samples, 95),
		P99Micros:    percentileMicros(samples, 99),
	}
}

// percentileMicros returns the p-th percentile of sorted samples, in
// microseconds, using nearest-rank on the sorted slice.
func percentileMicros(sorted []time.Duration, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx].Microseconds()
}
