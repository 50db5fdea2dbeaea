// Package audit maintains the append-only security audit trail: a bounded
// in-memory ring mirrored to daily-rotated JSONL files, with threshold
// alerting and per-user behavioral anomaly detection.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbh-ai/secure-agent-memory/model"
)

// Alert thresholds per severity over a sliding one-hour window.
var alertThresholds = map[model.Severity]int{
	model.SeverityCritical: 1,
	model.SeverityHigh:     5,
	model.SeverityMedium:   20,
	model.SeverityLow:      100,
}

// Logger is the audit event sink. Events are immutable once logged.
type Logger struct {
	mu           sync.Mutex
	ring         []model.AuditEvent
	ringCap      int
	dir          string
	file         *os.File
	fileDay      string
	alertWindows map[model.Severity][]time.Time
	baselines    map[string]*baseline
	log          zerolog.Logger
	now          func() time.Time
}

// NewLogger creates an audit logger. dir is the directory for JSONL files;
// empty disables the durable mirror (tests).
func NewLogger(dir string, ringCap int, log zerolog.Logger) (*Logger, error) {
	if ringCap <= 0 {
		ringCap = 10000
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	return &Logger{
		ring:         make([]model.AuditEvent, 0, ringCap),
		ringCap:      ringCap,
		dir:          dir,
		alertWindows: make(map[model.Severity][]time.Time),
		baselines:    make(map[string]*baseline),
		log:          log,
		now:          time.Now,
	}, nil
}

// LogEvent appends one event, assigning its id and timestamp when unset,
// and returns the event id. The durable mirror is line-delimited JSON
// partitioned by day.
func (l *Logger) LogEvent(e model.AuditEvent) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	l.ring = append(l.ring, e)
	if len(l.ring) > l.ringCap {
		l.ring = l.ring[len(l.ring)-l.ringCap:]
	}

	if err := l.mirrorLocked(e); err != nil {
		// The in-memory trail still holds the event; surface the error.
		l.log.Error().Err(err).Msg("audit mirror write failed")
		return e.EventID, err
	}

	l.checkAlertsLocked(e)
	l.updateBaselineLocked(e)
	return e.EventID, nil
}

func (l *Logger) mirrorLocked(e model.AuditEvent) error {
	if l.dir == "" {
		return nil
	}
	day := e.Timestamp.Format("2006-01-02")
	if l.file == nil || day != l.fileDay {
		if l.file != nil {
			l.file.Close()
		}
		path := filepath.Join(l.dir, "audit-"+day+".jsonl")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open audit file: %w", err)
		}
		l.file = f
		l.fileDay = day
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := l.file.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// checkAlertsLocked counts recent events of the severity tier and warns
// when the threshold is crossed.
func (l *Logger) checkAlertsLocked(e model.AuditEvent) {
	threshold, ok := alertThresholds[e.Severity]
	if !ok {
		return
	}
	cutoff := e.Timestamp.Add(-time.Hour)
	kept := l.alertWindows[e.Severity][:0]
	for _, at := range l.alertWindows[e.Severity] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, e.Timestamp)
	l.alertWindows[e.Severity] = kept

	if len(kept) >= threshold {
		l.log.Warn().
			Str("severity", string(e.Severity)).
			Int("count", len(kept)).
			Int("threshold", threshold).
			Msg("audit alert threshold crossed")
	}
}

// EventQuery filters audit events.
type EventQuery struct {
	UserID      string            `json:"user_id,omitempty"`
	Types       []model.EventType `json:"event_types,omitempty"`
	MinSeverity model.Severity    `json:"min_severity,omitempty"`
	Start       *time.Time        `json:"start,omitempty"`
	End         *time.Time        `json:"end,omitempty"`
	Correlation string            `json:"correlation_id,omitempty"`
	Limit       int               `json:"limit,omitempty"`
}

// SearchEvents returns matching events from the in-memory ring, newest
// first.
func (l *Logger) SearchEvents(q EventQuery) []model.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []model.AuditEvent
	for i := len(l.ring) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.ring[i]
		if !matchesEvent(e, q) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesEvent(e model.AuditEvent, q EventQuery) bool {
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if len(q.Types) > 0 {
		ok := false
		for _, t := range q.Types {
			if e.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.MinSeverity != "" && e.Severity.Rank() < q.MinSeverity.Rank() {
		return false
	}
	if q.Start != nil && e.Timestamp.Before(*q.Start) {
		return false
	}
	if q.End != nil && e.Timestamp.After(*q.End) {
		return false
	}
	if q.Correlation != "" && e.CorrelationID != q.Correlation {
		return false
	}
	return true
}

// NewCorrelationID returns an identifier linking a causally-related burst
// of events for later joint inspection.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Close releases the durable mirror file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
