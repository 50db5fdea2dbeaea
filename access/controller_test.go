package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbh-ai/secure-agent-memory/logger"
	"github.com/tbh-ai/secure-agent-memory/model"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	return NewController(50, logger.Nop())
}

func grantUser(t *testing.T, c *Controller, userID string) {
	t.Helper()
	require.NoError(t, c.GrantRole(userID, RoleUser))
}

func TestGuestDefaultsOnFirstSight(t *testing.T) {
	c := newTestController(t)

	// An unknown user gets implicit guest permissions: read-only over
	// session and working memory.
	res := c.ValidateAccess("stranger", "k", model.TypeSession, model.AccessPublic, model.PermRead, nil)
	assert.True(t, res.IsAllowed)
	assert.Equal(t, DecisionAllow, res.Decision)

	res = c.ValidateAccess("stranger", "k", model.TypeSession, model.AccessPublic, model.PermWrite, nil)
	require.False(t, res.IsAllowed)
	assert.Contains(t, res.MissingPermissions, model.PermWrite)

	perms, ok := c.Permissions("stranger")
	require.True(t, ok)
	assert.NotNil(t, perms.ExpiresAt, "guest permissions must be time-boxed")
}

func TestGuestExpiry(t *testing.T) {
	c := newTestController(t)

	base := time.Now().UTC()
	c.now = func() time.Time { return base }
	res := c.ValidateAccess("guest1", "k", model.TypeSession, model.AccessPublic, model.PermRead, nil)
	require.True(t, res.IsAllowed)

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	res = c.ValidateAccess("guest1", "k", model.TypeSession, model.AccessPublic, model.PermRead, nil)
	require.False(t, res.IsAllowed)
	assert.Equal(t, "permissions expired", res.Reason)
}

func TestRoleUser(t *testing.T) {
	c := newTestController(t)
	grantUser(t, c, "alice")

	// Full CRUD over private working memory.
	for _, op := range []string{model.PermRead, model.PermWrite, model.PermUpdate, model.PermDelete, model.PermSearch} {
		res := c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, op, nil)
		assert.True(t, res.IsAllowed, "operation %s should be allowed", op)
	}

	// Pattern memory is outside the user role; the denial routes to
	// escalation rather than a hard no.
	res := c.ValidateAccess("alice", "k", model.TypePattern, model.AccessPrivate, model.PermWrite, nil)
	require.False(t, res.IsAllowed)
	assert.Equal(t, DecisionRequireEscalation, res.Decision)

	// System-level entries require admin.
	res = c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessSystem, model.PermRead, nil)
	require.False(t, res.IsAllowed)
	assert.Equal(t, DecisionRequireEscalation, res.Decision)
	assert.Contains(t, res.MissingPermissions, model.PermAdmin)
}

func TestRoleAdmin(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.GrantRole("root", RoleAdmin))

	res := c.ValidateAccess("root", "k", model.TypePattern, model.AccessSystem, model.PermWrite, nil)
	assert.True(t, res.IsAllowed)
}

func TestGrantRoleUnknown(t *testing.T) {
	c := newTestController(t)
	err := c.GrantRole("alice", "superuser")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestBlockAndUnblock(t *testing.T) {
	c := newTestController(t)
	grantUser(t, c, "alice")

	c.Block("alice")
	res := c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermRead, nil)
	require.False(t, res.IsAllowed)
	assert.Equal(t, "user is blocked", res.Reason)
	assert.False(t, res.RateLimited, "permission denials are not retryable")

	c.Unblock("alice")
	res = c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermRead, nil)
	assert.True(t, res.IsAllowed)
}

func TestRestrictionAutoExpires(t *testing.T) {
	c := newTestController(t)
	grantUser(t, c, "alice")

	base := time.Now().UTC()
	c.now = func() time.Time { return base }
	c.Restrict("alice", 10*time.Minute)

	res := c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermRead, nil)
	require.False(t, res.IsAllowed)
	assert.Contains(t, res.Reason, "restricted until")

	c.now = func() time.Time { return base.Add(11 * time.Minute) }
	res = c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermRead, nil)
	assert.True(t, res.IsAllowed)
}

func TestRateLimitSlidingWindow(t *testing.T) {
	c := newTestController(t)

	base := time.Now().UTC()
	c.now = func() time.Time { return base }

	perms := rolePermissions("alice", RoleUser, base)
	perms.RateLimits[model.PermWrite] = 2
	require.NoError(t, c.Grant(perms))

	res := c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermWrite, nil)
	require.True(t, res.IsAllowed)
	assert.Equal(t, 1, res.RateLimitRemaining)

	res = c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermWrite, nil)
	require.True(t, res.IsAllowed)
	assert.Equal(t, 0, res.RateLimitRemaining)

	res = c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermWrite, nil)
	require.False(t, res.IsAllowed)
	assert.Contains(t, res.Reason, "rate limit exceeded")
	assert.Equal(t, 0, res.RateLimitRemaining)
	assert.True(t, res.RateLimited)

	// Reads use their own counter.
	res = c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermRead, nil)
	assert.True(t, res.IsAllowed)

	// The window slides: attempts older than an hour free capacity.
	c.now = func() time.Time { return base.Add(61 * time.Minute) }
	res = c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermWrite, nil)
	assert.True(t, res.IsAllowed)
}

func TestRateLimitUnlimitedOperation(t *testing.T) {
	c := newTestController(t)

	perms := rolePermissions("alice", RoleUser, time.Now().UTC())
	delete(perms.RateLimits, model.PermRead)
	require.NoError(t, c.Grant(perms))

	res := c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermRead, nil)
	require.True(t, res.IsAllowed)
	assert.Equal(t, -1, res.RateLimitRemaining)
}

func TestRevoke(t *testing.T) {
	c := newTestController(t)
	grantUser(t, c, "alice")
	c.Revoke("alice")

	// After revocation the next check recreates guest defaults; a write to
	// private memory is no longer possible.
	res := c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermWrite, nil)
	assert.False(t, res.IsAllowed)
}

func TestFailSecureOnPanic(t *testing.T) {
	c := newTestController(t)
	grantUser(t, c, "alice")

	// Force a panic inside the ladder.
	c.now = func() time.Time { panic("clock failure") }

	res := c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermRead, nil)
	require.False(t, res.IsAllowed)
	assert.Equal(t, DecisionDeny, res.Decision)
	assert.Contains(t, res.Reason, "internal error")
}

func TestConfidenceBlend(t *testing.T) {
	c := newTestController(t)
	grantUser(t, c, "alice")

	bare := c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermRead, nil)
	require.True(t, bare.IsAllowed)
	assert.Greater(t, bare.Confidence, 0.0)
	assert.LessOrEqual(t, bare.Confidence, 1.0)

	// Richer request context and a clean history raise confidence.
	rich := c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermRead, &Context{
		SessionID: "s1", SourceIP: "10.0.0.1", UserAgent: "agent/1.0",
	})
	assert.Greater(t, rich.Confidence, bare.Confidence)
}

func TestConfidenceNeverGates(t *testing.T) {
	c := newTestController(t)

	base := time.Now().UTC()
	perms := rolePermissions("alice", RoleUser, base)
	require.NoError(t, c.Grant(perms))

	// Build a history of denials to drag the success rate down.
	for i := 0; i < 20; i++ {
		c.ValidateAccess("alice", "k", model.TypePattern, model.AccessPrivate, model.PermWrite, nil)
	}

	res := c.ValidateAccess("alice", "k", model.TypeWorking, model.AccessPrivate, model.PermRead, nil)
	assert.True(t, res.IsAllowed, "low confidence must not deny an otherwise valid request")
}
