package audit

import (
	"time"

	"github.com/tbh-ai/secure-agent-memory/model"
)

// Anomaly kinds flagged by the behavioral baseline.
const (
	AnomalyRapidFailures = "rapid_successive_failures"
	AnomalyUnusualType   = "unusual_memory_type"
	AnomalyRiskSpike     = "risk_score_spike"
)

// Anomaly is one flagged deviation from a user's baseline.
type Anomaly struct {
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	DetectedAt time.Time `json:"detected_at"`
	Detail     string    `json:"detail"`
}

const (
	failureWindow   = 5 * time.Minute
	failureCount    = 5
	riskSpikeMargin = 0.3
	baselineMinimum = 10 // events before type/risk deviations are judged
	emaAlpha        = 0.2
)

// baseline tracks one user's behavioral norm, updated after every event.
type baseline struct {
	riskEMA      float64
	eventCount   int
	opCounts     map[string]int
	typicalTypes map[model.MemoryType]bool
	failures     []time.Time
	anomalies    []Anomaly
}

// updateBaselineLocked folds the event into the user's baseline and flags
// deviations.
func (l *Logger) updateBaselineLocked(e model.AuditEvent) {
	if e.UserID == "" {
		return
	}
	b, ok := l.baselines[e.UserID]
	if !ok {
		b = &baseline{
			opCounts:     make(map[string]int),
			typicalTypes: make(map[model.MemoryType]bool),
		}
		l.baselines[e.UserID] = b
	}

	// Flag deviations against the pre-update baseline.
	if !e.Success {
		cutoff := e.Timestamp.Add(-failureWindow)
		kept := b.failures[:0]
		for _, at := range b.failures {
			if at.After(cutoff) {
				kept = append(kept, at)
			}
		}
		kept = append(kept, e.Timestamp)
		b.failures = kept
		if len(kept) >= failureCount {
			l.flagLocked(b, Anomaly{
				Kind:       AnomalyRapidFailures,
				UserID:     e.UserID,
				DetectedAt: e.Timestamp,
				Detail:     "five or more failures within five minutes",
			})
		}
	}

	if b.eventCount >= baselineMinimum {
		if e.MemoryType != "" && !b.typicalTypes[e.MemoryType] {
			l.flagLocked(b, Anomaly{
				Kind:       AnomalyUnusualType,
				UserID:     e.UserID,
				DetectedAt: e.Timestamp,
				Detail:     "access to memory type " + string(e.MemoryType) + " outside historical norm",
			})
		}
		if e.RiskScore > b.riskEMA+riskSpikeMargin {
			l.flagLocked(b, Anomaly{
				Kind:       AnomalyRiskSpike,
				UserID:     e.UserID,
				DetectedAt: e.Timestamp,
				Detail:     "risk score significantly above baseline",
			})
		}
	}

	// Fold the event in.
	b.eventCount++
	b.riskEMA = b.riskEMA*(1-emaAlpha) + e.RiskScore*emaAlpha
	if e.Operation != "" {
		b.opCounts[e.Operation]++
	}
	if e.MemoryType != "" {
		b.typicalTypes[e.MemoryType] = true
	}
}

func (l *Logger) flagLocked(b *baseline, a Anomaly) {
	b.anomalies = append(b.anomalies, a)
	if len(b.anomalies) > 100 {
		b.anomalies = b.anomalies[len(b.anomalies)-100:]
	}
	l.log.Warn().
		Str("kind", a.Kind).
		Str("user", a.UserID).
		Str("detail", a.Detail).
		Msg("behavioral anomaly flagged")
}

// Anomalies returns flagged anomalies in the window, all users when
// userID is empty.
func (l *Logger) Anomalies(userID string, start, end time.Time) []Anomaly {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Anomaly
	for id, b := range l.baselines {
		if userID != "" && id != userID {
			continue
		}
		for _, a := range b.anomalies {
			if !a.DetectedAt.Before(start) && !a.DetectedAt.After(end) {
				out = append(out, a)
			}
		}
	}
	return out
}
