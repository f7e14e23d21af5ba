package trace

import (
	"strings"
	"time"

	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/schema"
)

// Quality estimates attached to executed backends.
const (
	QualityVerified = 0.9
	QualityRejected = 0.2
	QualityFailed   = 0.0
)

// Execution summarizes one executor call for the scoreboard.
type Execution struct {
	BackendID string
	Role      string // "primary" or "fallback"
	Latency   time.Duration
	Err       error
	Verified  bool
	Winner    bool
}

// BuildScoreboard lists every backend tagged with intent plus every executed
// backend, in registry order. Probes supply latencies for candidates that
// were not executed; their quality stays zero.
func BuildScoreboard(reg *registry.Registry, intent schema.Intent, executions []Execution, probes map[string]time.Duration) []schema.ScoreboardEntry {
	byBackend := make(map[string]Execution, len(executions))
	for _, e := range executions {
		byBackend[e.BackendID] = e
	}

	entries := make([]schema.ScoreboardEntry, 0)
	for _, b := range reg.All() {
		exec, executed := byBackend[b.ID]
		if !executed && !b.HasTag(intent) {
			continue
		}

		entry := schema.ScoreboardEntry{
			BackendID: b.ID,
			CostTier:  b.CostTier,
			Executed:  executed,
		}
		if !executed {
			notes := []string{"not executed"}
			if d, ok := probes[b.ID]; ok {
				entry.LatencyMs = d.Milliseconds()
				notes = append(notes, "latency from probe")
			}
			entry.Notes = strings.Join(notes, "; ")
			entries = append(entries, entry)
			continue
		}

		entry.LatencyMs = exec.Latency.Milliseconds()
		notes := []string{exec.Role}
		switch {
		case exec.Err != nil:
			entry.QualityEstimate = QualityFailed
			notes = append(notes, "error: "+exec.Err.Error())
		case exec.Verified:
			entry.QualityEstimate = QualityVerified
			notes = append(notes, "verified")
		default:
			entry.QualityEstimate = QualityRejected
			notes = append(notes, "verification failed")
		}
		if exec.Winner {
			notes = append(notes, "winner")
		}
		entry.Notes = strings.Join(notes, "; ")
		entries = append(entries, entry)
	}
	return entries
}
