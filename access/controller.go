// Package access implements the RBAC access controller: permission sets,
// sliding-window rate limits, temporal restrictions and escalation.
package access

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbh-ai/secure-agent-memory/model"
)

// Decision is the outcome class of an access check.
type Decision string

const (
	DecisionAllow             Decision = "ALLOW"
	DecisionDeny              Decision = "DENY"
	DecisionRequireEscalation Decision = "REQUIRE_ESCALATION"
)

// Result carries the full access verdict. Confidence is advisory
// metadata, never a gate.
type Result struct {
	IsAllowed           bool     `json:"is_allowed"`
	Decision            Decision `json:"decision"`
	Reason              string   `json:"reason"`
	Confidence          float64  `json:"confidence"`
	RequiredPermissions []string `json:"required_permissions,omitempty"`
	MissingPermissions  []string `json:"missing_permissions,omitempty"`
	RateLimitRemaining  int      `json:"rate_limit_remaining"`
	// RateLimited marks denials caused by the sliding window, so
	// callers can tell a retryable denial from a permission one.
	RateLimited bool `json:"rate_limited,omitempty"`
}

// Context carries optional request context for confidence scoring.
type Context struct {
	SessionID string
	SourceIP  string
	UserAgent string
}

type attempt struct {
	at        time.Time
	operation string
	allowed   bool
}

// Controller is the access-control engine. All state is in-process and
// mutated under one lock; storage-level serialization happens per user in
// the backend.
type Controller struct {
	mu           sync.Mutex
	perms        map[string]*model.UserPermissions
	blocked      map[string]bool
	restrictions map[string]time.Time              // user -> restricted until
	rateWindows  map[string]map[string][]time.Time // user -> op -> attempt times
	history      map[string][]attempt
	historyCap   int
	log          zerolog.Logger
	now          func() time.Time
}

// NewController creates an access controller. historyCap bounds retained
// attempts per user.
func NewController(historyCap int, log zerolog.Logger) *Controller {
	if historyCap <= 0 {
		historyCap = 200
	}
	return &Controller{
		perms:        make(map[string]*model.UserPermissions),
		blocked:      make(map[string]bool),
		restrictions: make(map[string]time.Time),
		rateWindows:  make(map[string]map[string][]time.Time),
		history:      make(map[string][]attempt),
		historyCap:   historyCap,
		log:          log,
		now:          time.Now,
	}
}

// ValidateAccess runs the decision ladder. Any internal panic resolves to
// DENY, never ALLOW.
func (c *Controller) ValidateAccess(userID, memoryKey string, t model.MemoryType, level model.AccessLevel, operation string, reqCtx *Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("user", userID).Msg("access validation panicked, denying")
			result = Result{
				IsAllowed:  false,
				Decision:   DecisionDeny,
				Reason:     "internal error during access validation",
				Confidence: 0,
			}
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	result = c.validateLocked(userID, t, level, operation, reqCtx, now)
	c.recordLocked(userID, operation, result.IsAllowed, now)
	return result
}

// validateLocked applies the ladder checks in order, short-circuiting on
// the first failure.
func (c *Controller) validateLocked(userID string, t model.MemoryType, level model.AccessLevel, operation string, reqCtx *Context, now time.Time) Result {
	if c.blocked[userID] {
		return Result{IsAllowed: false, Decision: DecisionDeny, Reason: "user is blocked", Confidence: 1.0}
	}

	if until, ok := c.restrictions[userID]; ok {
		if now.Before(until) {
			return Result{
				IsAllowed:  false,
				Decision:   DecisionDeny,
				Reason:     fmt.Sprintf("user is restricted until %s", until.Format(time.RFC3339)),
				Confidence: 1.0,
			}
		}
		delete(c.restrictions, userID) // restriction auto-expires
	}

	perms, ok := c.perms[userID]
	if !ok {
		// First sight: create time-boxed guest permissions.
		perms = rolePermissions(userID, RoleGuest, now)
		c.perms[userID] = perms
		c.log.Info().Str("user", userID).Msg("created default guest permissions")
	}

	if perms.Expired(now) {
		return Result{IsAllowed: false, Decision: DecisionDeny, Reason: "permissions expired", Confidence: 1.0}
	}

	remaining, limited := c.checkRateLocked(userID, operation, perms, now)
	if limited {
		return Result{
			IsAllowed:          false,
			Decision:           DecisionDeny,
			Reason:             fmt.Sprintf("rate limit exceeded for %s", operation),
			Confidence:         1.0,
			RateLimitRemaining: 0,
			RateLimited:        true,
		}
	}

	required := requiredPermissions(operation, level)
	if !perms.AllowsType(t) {
		res := Result{
			IsAllowed:           false,
			Reason:              fmt.Sprintf("memory type %s not allowed", t),
			Confidence:          c.confidenceLocked(userID, perms, required, reqCtx, now),
			RequiredPermissions: required,
			RateLimitRemaining:  remaining,
		}
		// Long-term and pattern memory have a higher-privilege approval
		// path rather than a hard denial.
		if t == model.TypeLongTerm || t == model.TypePattern {
			res.Decision = DecisionRequireEscalation
		} else {
			res.Decision = DecisionDeny
		}
		return res
	}

	var missing []string
	for _, p := range required {
		if !perms.Has(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		res := Result{
			IsAllowed:           false,
			Reason:              fmt.Sprintf("missing permissions: %v", missing),
			Confidence:          c.confidenceLocked(userID, perms, required, reqCtx, now),
			RequiredPermissions: required,
			MissingPermissions:  missing,
			RateLimitRemaining:  remaining,
		}
		res.Decision = DecisionDeny
		for _, m := range missing {
			if m == model.PermAdmin {
				res.Decision = DecisionRequireEscalation
				break
			}
		}
		return res
	}

	return Result{
		IsAllowed:           true,
		Decision:            DecisionAllow,
		Reason:              "access granted",
		Confidence:          c.confidenceLocked(userID, perms, required, reqCtx, now),
		RequiredPermissions: required,
		RateLimitRemaining:  remaining,
	}
}

// requiredPermissions derives the capability set for an operation against
// an access level.
func requiredPermissions(operation string, level model.AccessLevel) []string {
	required := []string{operation}
	switch level {
	case model.AccessPrivate:
		required = append(required, model.PermAccessPrivate)
	case model.AccessShared:
		required = append(required, model.PermAccessShared)
	case model.AccessSystem:
		required = append(required, model.PermAccessSystem, model.PermAdmin)
	}
	return required
}

// checkRateLocked counts attempts in the sliding one-hour window, pruning
// stale entries lazily. The successful attempt is appended here so the
// count includes the current operation.
func (c *Controller) checkRateLocked(userID, operation string, perms *model.UserPermissions, now time.Time) (remaining int, limited bool) {
	limit, ok := perms.RateLimits[operation]
	if !ok || limit <= 0 {
		return -1, false // unlimited
	}

	windows, ok := c.rateWindows[userID]
	if !ok {
		windows = make(map[string][]time.Time)
		c.rateWindows[userID] = windows
	}

	cutoff := now.Add(-time.Hour)
	kept := windows[operation][:0]
	for _, at := range windows[operation] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= limit {
		windows[operation] = kept
		return 0, true
	}

	kept = append(kept, now)
	windows[operation] = kept
	return limit - len(kept), false
}

// confidenceLocked blends historical success rate, permission
// completeness, account age and context richness. Advisory only.
func (c *Controller) confidenceLocked(userID string, perms *model.UserPermissions, required []string, reqCtx *Context, now time.Time) float64 {
	successRate := 0.5
	if attempts := c.history[userID]; len(attempts) > 0 {
		ok := 0
		for _, a := range attempts {
			if a.allowed {
				ok++
			}
		}
		successRate = float64(ok) / float64(len(attempts))
	}

	completeness := 1.0
	if len(required) > 0 {
		held := 0
		for _, p := range required {
			if perms.Has(p) {
				held++
			}
		}
		completeness = float64(held) / float64(len(required))
	}

	age := now.Sub(perms.CreatedAt).Hours() / (24 * 30)
	if age > 1 {
		age = 1
	}
	if age < 0 {
		age = 0
	}

	richness := 0.0
	if reqCtx != nil {
		if reqCtx.SessionID != "" {
			richness += 1.0 / 3
		}
		if reqCtx.SourceIP != "" {
			richness += 1.0 / 3
		}
		if reqCtx.UserAgent != "" {
			richness += 1.0 / 3
		}
	}

	return successRate*0.4 + completeness*0.3 + age*0.2 + richness*0.1
}

// recordLocked appends the attempt, keeping only the most recent entries.
func (c *Controller) recordLocked(userID, operation string, allowed bool, now time.Time) {
	h := append(c.history[userID], attempt{at: now, operation: operation, allowed: allowed})
	if len(h) > c.historyCap {
		h = h[len(h)-c.historyCap:]
	}
	c.history[userID] = h
}

// Grant installs an explicit permission set for the user.
func (c *Controller) Grant(perms *model.UserPermissions) error {
	if perms == nil || perms.UserID == "" {
		return fmt.Errorf("%w: grant requires a user id", model.ErrConfiguration)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if perms.CreatedAt.IsZero() {
		perms.CreatedAt = c.now().UTC()
	}
	c.perms[perms.UserID] = perms
	c.log.Info().Str("user", perms.UserID).Str("level", perms.AccessLevel).Msg("permissions granted")
	return nil
}

// GrantRole installs the canned bundle for a role preset.
func (c *Controller) GrantRole(userID, role string) error {
	switch role {
	case RoleGuest, RoleUser, RoleAdmin:
	default:
		return fmt.Errorf("%w: unknown role %q", model.ErrConfiguration, role)
	}
	return c.Grant(rolePermissions(userID, role, c.now().UTC()))
}

// Revoke clears the user's permissions, history and rate counters.
func (c *Controller) Revoke(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.perms, userID)
	delete(c.history, userID)
	delete(c.rateWindows, userID)
	delete(c.restrictions, userID)
	c.log.Info().Str("user", userID).Msg("permissions revoked")
}

// Block denies all access for the user until unblocked.
func (c *Controller) Block(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked[userID] = true
	c.log.Warn().Str("user", userID).Msg("user blocked")
}

// Unblock lifts a block.
func (c *Controller) Unblock(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blocked, userID)
	c.log.Info().Str("user", userID).Msg("user unblocked")
}

// Restrict applies a time-boxed restriction that auto-expires.
func (c *Controller) Restrict(userID string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restrictions[userID] = c.now().UTC().Add(d)
	c.log.Warn().Str("user", userID).Dur("duration", d).Msg("user restricted")
}

// Permissions returns a copy of the user's current permission set, if any.
func (c *Controller) Permissions(userID string) (*model.UserPermissions, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.perms[userID]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}
