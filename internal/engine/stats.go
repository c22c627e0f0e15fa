package engine

import (
	"sort"
	"sync"

	"apiprobe/internal/protocol"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram bounds in milliseconds: 0 to one hour at 3 significant figures.
const (
	maxTrackableMs = 60 * 60 * 1000
	sigFigs        = 3
)

// LatencySummary describes the response times of one protocol, in milliseconds.
type LatencySummary struct {
	Count int64   `json:"count"`
	Min   int64   `json:"min_ms"`
	Max   int64   `json:"max_ms"`
	Mean  float64 `json:"mean_ms"`
	P50   int64   `json:"p50_ms"`
	P90   int64   `json:"p90_ms"`
	P95   int64   `json:"p95_ms"`
	P99   int64   `json:"p99_ms"`
}

// Stats collects response times per protocol. It implements scenario.Observer
// and is shared by every scenario of a run.
type Stats struct {
	mu         sync.Mutex
	histograms map[string]*hdrhistogram.Histogram
}

// NewStats creates an empty collector.
func NewStats() *Stats {
	return &Stats{histograms: make(map[string]*hdrhistogram.Histogram)}
}

// ObserveResponse records the response time of resp.
func (s *Stats) ObserveResponse(protocolName string, resp *protocol.Response) {
	if resp == nil {
		return
	}
	ms := resp.ResponseTimeMs()
	if ms < 0 {
		ms = 0
	}
	if ms > maxTrackableMs {
		ms = maxTrackableMs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histograms[protocolName]
	if !ok {
		h = hdrhistogram.New(1, maxTrackableMs, sigFigs)
		s.histograms[protocolName] = h
	}
	_ = h.RecordValue(ms)
}

// Protocols returns the protocols with at least one observation, sorted.
func (s *Stats) Protocols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.histograms))
	for name := range s.histograms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary returns the latency summary of one protocol.
func (s *Stats) Summary(protocolName string) (LatencySummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histograms[protocolName]
	if !ok {
		return LatencySummary{}, false
	}
	return summarize(h), true
}

// Summaries returns the latency summary of every observed protocol.
func (s *Stats) Summaries() map[string]LatencySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]LatencySummary, len(s.histograms))
	for name, h := range s.histograms {
		out[name] = summarize(h)
	}
	return out
}

func summarize(h *hdrhistogram.Histogram) LatencySummary {
	return LatencySummary{
		Count: h.TotalCount(),
		Min:   h.Min(),
		Max:   h.Max(),
		Mean:  h.Mean(),
		P50:   h.ValueAtQuantile(50),
		P90:   h.ValueAtQuantile(90),
		P95:   h.ValueAtQuantile(95),
		P99:   h.ValueAtQuantile(99),
	}
}
