package model

import "time"

// EventType tags an audit event with the action it records.
type EventType string

const (
	EventAccessGranted      EventType = "access_granted"
	EventAccessDenied       EventType = "access_denied"
	EventValidationPassed   EventType = "validation_passed"
	EventValidationFailed   EventType = "validation_failed"
	EventEncryption         EventType = "encryption"
	EventDecryption         EventType = "decryption"
	EventMemoryStored       EventType = "memory_stored"
	EventMemoryRetrieved    EventType = "memory_retrieved"
	EventMemoryUpdated      EventType = "memory_updated"
	EventMemoryDeleted      EventType = "memory_deleted"
	EventRateLimited        EventType = "rate_limited"
	EventEscalationRequired EventType = "escalation_required"
	EventKeyRotation        EventType = "key_rotation"
	EventAnomalyDetected    EventType = "anomaly_detected"
	EventSecurityError      EventType = "security_error"
)

// Severity grades an audit event for alerting.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal severity, low=0 through critical=3.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// AuditEvent is one immutable record in the audit trail. Events are
// append-only and never mutated after creation.
type AuditEvent struct {
	EventID       string            `json:"event_id"`
	Type          EventType         `json:"event_type"`
	Severity      Severity          `json:"severity"`
	Timestamp     time.Time         `json:"timestamp"`
	UserID        string            `json:"user_id"`
	SessionID     string            `json:"session_id,omitempty"`
	SourceIP      string            `json:"source_ip,omitempty"`
	UserAgent     string            `json:"user_agent,omitempty"`
	MemoryKey     string            `json:"memory_key,omitempty"`
	MemoryType    MemoryType        `json:"memory_type,omitempty"`
	Operation     string            `json:"operation,omitempty"`
	Success       bool              `json:"success"`
	Details       map[string]string `json:"details,omitempty"`
	RiskScore     float64           `json:"risk_score"`
	Tags          []string          `json:"tags,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}
