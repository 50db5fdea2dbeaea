// Package security orchestrates content validation, access control,
// encryption and auditing behind one composite risk verdict.
package security

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tbh-ai/secure-agent-memory/access"
	"github.com/tbh-ai/secure-agent-memory/audit"
	"github.com/tbh-ai/secure-agent-memory/encryption"
	"github.com/tbh-ai/secure-agent-memory/model"
	"github.com/tbh-ai/secure-agent-memory/validator"
)

// Risk weights for the composite score. Content dominates; the user's
// running risk score contributes a small trailing term.
const (
	weightContent   = 0.6
	weightAccess    = 0.2
	weightType      = 0.1
	weightOperation = 0.1
	weightUser      = 0.1
)

// Verdict is the combined outcome of validating one entry for one
// operation.
type Verdict struct {
	IsSecure bool             `json:"is_secure"`
	Content  validator.Result `json:"content"`
	Access   access.Result    `json:"access"`
	Risk     float64          `json:"risk"`
	Reason   string           `json:"reason,omitempty"`
}

// Manager funnels every validation, access check, encryption and
// decryption through one place so the audit trail stays centralized.
type Manager struct {
	validator *validator.Validator
	access    *access.Controller
	crypto    *encryption.Manager
	audit     *audit.Logger
	threshold float64

	mu       sync.Mutex
	userRisk map[string]float64

	log zerolog.Logger
}

// NewManager wires the security subsystems together.
func NewManager(v *validator.Validator, ac *access.Controller, enc *encryption.Manager, auditLog *audit.Logger, riskThreshold float64, log zerolog.Logger) *Manager {
	return &Manager{
		validator: v,
		access:    ac,
		crypto:    enc,
		audit:     auditLog,
		threshold: riskThreshold,
		userRisk:  make(map[string]float64),
		log:       log,
	}
}

// Access exposes the underlying controller for administrative operations.
func (m *Manager) Access() *access.Controller { return m.access }

// Audit exposes the audit logger for queries and reports.
func (m *Manager) Audit() *audit.Logger { return m.audit }

// ValidateEntry runs content and access validation for the entry and
// operation, computes the composite risk, and records the outcome. The
// entry is secure only when content is secure, access is allowed and risk
// stays below the acceptance threshold.
func (m *Manager) ValidateEntry(ctx context.Context, entry *model.MemoryEntry, operation string, reqCtx *access.Context) Verdict {
	content := m.validator.Validate(ctx, entry.Content, entry.Type, entry.Metadata.Priority, map[string]string{
		"user_id":     entry.UserID,
		"memory_type": string(entry.Type),
		"operation":   operation,
	})
	acc := m.access.ValidateAccess(entry.UserID, entry.Key, entry.Type, entry.Metadata.AccessLevel, operation, reqCtx)

	risk := m.compositeRisk(entry.UserID, content, acc, entry.Type, operation)
	secure := content.IsSecure && acc.IsAllowed && risk < m.threshold

	v := Verdict{IsSecure: secure, Content: content, Access: acc, Risk: risk}
	switch {
	case !content.IsSecure:
		v.Reason = content.Reason
	case !acc.IsAllowed:
		v.Reason = acc.Reason
	case !secure:
		v.Reason = fmt.Sprintf("composite risk %.2f exceeds threshold %.2f", risk, m.threshold)
	}

	m.updateUserRisk(entry.UserID, secure)
	m.logVerdict(entry, operation, v)
	return v
}

// ValidateQuery checks search text for query-syntax injection and audits
// rejections.
func (m *Manager) ValidateQuery(userID, text string) validator.Result {
	res := m.validator.ValidateQuery(text)
	if !res.IsSecure {
		m.audit.LogEvent(model.AuditEvent{
			Type:      model.EventValidationFailed,
			Severity:  model.SeverityMedium,
			UserID:    userID,
			Operation: model.PermSearch,
			Success:   false,
			RiskScore: m.UserRisk(userID),
			Details:   map[string]string{"reason": res.Reason},
		})
		m.updateUserRisk(userID, false)
	}
	return res
}

// CheckAccess validates one access decision (retrieve/list paths where
// content is not re-validated) and audits the outcome.
func (m *Manager) CheckAccess(userID, memoryKey string, t model.MemoryType, level model.AccessLevel, operation string, reqCtx *access.Context) access.Result {
	res := m.access.ValidateAccess(userID, memoryKey, t, level, operation, reqCtx)

	eventType := model.EventAccessGranted
	severity := model.SeverityLow
	if !res.IsAllowed {
		eventType = model.EventAccessDenied
		severity = model.SeverityMedium
		if res.Decision == access.DecisionRequireEscalation {
			eventType = model.EventEscalationRequired
		}
	}
	m.audit.LogEvent(model.AuditEvent{
		Type:       eventType,
		Severity:   severity,
		UserID:     userID,
		MemoryKey:  memoryKey,
		MemoryType: t,
		Operation:  operation,
		Success:    res.IsAllowed,
		RiskScore:  m.UserRisk(userID),
		Details:    map[string]string{"decision": string(res.Decision), "reason": res.Reason},
	})
	m.updateUserRisk(userID, res.IsAllowed)
	return res
}

// EncryptEntry encrypts through the manager so the operation is audited.
func (m *Manager) EncryptEntry(entry *model.MemoryEntry) error {
	err := m.crypto.Encrypt(entry)
	m.auditCrypto(model.EventEncryption, entry, err)
	return err
}

// DecryptEntry decrypts through the manager so the operation is audited.
func (m *Manager) DecryptEntry(entry *model.MemoryEntry) error {
	err := m.crypto.Decrypt(entry)
	m.auditCrypto(model.EventDecryption, entry, err)
	return err
}

// RotateUserKey rotates the user's key material and audits it.
func (m *Manager) RotateUserKey(userID string) {
	m.crypto.RotateKey(userID)
	m.audit.LogEvent(model.AuditEvent{
		Type:     model.EventKeyRotation,
		Severity: model.SeverityMedium,
		UserID:   userID,
		Success:  true,
	})
}

// ShouldRotateUserKey reports whether rotation is due for the user.
func (m *Manager) ShouldRotateUserKey(userID string) bool {
	return m.crypto.ShouldRotateKey(userID)
}

func (m *Manager) auditCrypto(t model.EventType, entry *model.MemoryEntry, err error) {
	severity := model.SeverityLow
	details := map[string]string{"method": entry.Metadata.EncryptionMethod}
	if err != nil {
		// Cipher failures are high-severity audit events.
		severity = model.SeverityHigh
		details["error"] = err.Error()
	}
	m.audit.LogEvent(model.AuditEvent{
		Type:       t,
		Severity:   severity,
		UserID:     entry.UserID,
		MemoryKey:  entry.Key,
		MemoryType: entry.Type,
		Success:    err == nil,
		RiskScore:  m.UserRisk(entry.UserID),
		Details:    details,
	})
}

func (m *Manager) logVerdict(entry *model.MemoryEntry, operation string, v Verdict) {
	eventType := model.EventValidationPassed
	severity := model.SeverityLow
	if !v.IsSecure {
		eventType = model.EventValidationFailed
		severity = model.SeverityMedium
		if v.Risk >= 0.8 {
			severity = model.SeverityHigh
		}
	}
	m.audit.LogEvent(model.AuditEvent{
		Type:       eventType,
		Severity:   severity,
		UserID:     entry.UserID,
		MemoryKey:  entry.Key,
		MemoryType: entry.Type,
		Operation:  operation,
		Success:    v.IsSecure,
		RiskScore:  v.Risk,
		Details:    map[string]string{"method": v.Content.Method, "reason": v.Reason},
	})
}

// compositeRisk blends content, access, type and operation risk with the
// user's running score.
func (m *Manager) compositeRisk(userID string, content validator.Result, acc access.Result, t model.MemoryType, operation string) float64 {
	contentRisk := 1 - content.Confidence
	if !content.IsSecure {
		contentRisk = content.Confidence
	}
	accessRisk := (1 - acc.Confidence) * 0.5
	if !acc.IsAllowed {
		accessRisk = 0.9
		if acc.Decision == access.DecisionRequireEscalation {
			accessRisk = 0.6
		}
	}

	base := contentRisk*weightContent + accessRisk*weightAccess +
		typeRisk(t)*weightType + operationRisk(operation)*weightOperation
	risk := base*(1-weightUser) + m.UserRisk(userID)*weightUser
	if risk > 1 {
		risk = 1
	}
	return risk
}

func typeRisk(t model.MemoryType) float64 {
	switch t {
	case model.TypeSession:
		return 0.1
	case model.TypeWorking, model.TypePreference:
		return 0.2
	case model.TypeLongTerm:
		return 0.4
	case model.TypePattern:
		return 0.6
	}
	return 0.5
}

func operationRisk(operation string) float64 {
	switch operation {
	case model.PermRead, model.PermSearch:
		return 0.2
	case model.PermWrite, model.PermUpdate:
		return 0.4
	case model.PermDelete:
		return 0.6
	}
	return 0.4
}

// UserRisk returns the user's smoothed risk score.
func (m *Manager) UserRisk(userID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userRisk[userID]
}

// updateUserRisk decays slowly on success and climbs on failure.
func (m *Manager) updateUserRisk(userID string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.userRisk[userID]
	if success {
		r *= 0.95
	} else {
		r += 0.1
		if r > 1 {
			r = 1
		}
	}
	m.userRisk[userID] = r
}

// Metrics aggregates security posture across known users.
type Metrics struct {
	TrackedUsers int     `json:"tracked_users"`
	AverageRisk  float64 `json:"average_risk"`
	HighestRisk  float64 `json:"highest_risk"`
}

// GetMetrics reports aggregate risk metrics.
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Metrics{TrackedUsers: len(m.userRisk)}
	var sum float64
	for _, r := range m.userRisk {
		sum += r
		if r > out.HighestRisk {
			out.HighestRisk = r
		}
	}
	if out.TrackedUsers > 0 {
		out.AverageRisk = sum / float64(out.TrackedUsers)
	}
	return out
}
