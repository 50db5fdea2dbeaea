package encryption

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbh-ai/secure-agent-memory/config"
	"github.com/tbh-ai/secure-agent-memory/logger"
	"github.com/tbh-ai/secure-agent-memory/model"
)

var testMasterKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(config.EncryptionConfig{
		MasterKey:     testMasterKey,
		KeyStoreDir:   dir,
		KDFIterations: 1000, // fast for tests
		KeyCacheTTL:   time.Minute,
	}, logger.Nop())
	require.NoError(t, err)
	return m
}

func encEntry(userID string, t model.MemoryType, p model.Priority, content string) *model.MemoryEntry {
	return &model.MemoryEntry{
		ID:      "01TEST",
		UserID:  userID,
		Type:    t,
		Key:     "k",
		Content: content,
		Metadata: model.MemoryMetadata{
			Priority:    p,
			AccessLevel: model.AccessPrivate,
		},
	}
}

func TestSelectMethod(t *testing.T) {
	tests := []struct {
		t    model.MemoryType
		p    model.Priority
		want string
	}{
		{model.TypeSession, model.PriorityNormal, ""},
		{model.TypeSession, model.PriorityLow, ""},
		{model.TypeSession, model.PriorityHigh, MethodSymmetric},
		{model.TypeWorking, model.PriorityNormal, MethodSymmetric},
		{model.TypePreference, model.PriorityCritical, MethodSymmetric},
		{model.TypeLongTerm, model.PriorityNormal, MethodSymmetric},
		{model.TypeLongTerm, model.PriorityHigh, MethodAsymmetric},
		{model.TypePattern, model.PriorityCritical, MethodAsymmetric},
		{model.TypePattern, model.PriorityNormal, MethodSymmetric},
	}
	for _, tt := range tests {
		if got := SelectMethod(tt.t, tt.p); got != tt.want {
			t.Errorf("SelectMethod(%s, %s) = %q, want %q", tt.t, tt.p, got, tt.want)
		}
	}
}

func TestSymmetricRoundTrip(t *testing.T) {
	m := newTestManager(t)
	e := encEntry("alice", model.TypeWorking, model.PriorityNormal, "remember the milk")

	require.NoError(t, m.Encrypt(e))
	require.True(t, e.IsEncrypted)
	assert.Equal(t, MethodSymmetric, e.Metadata.EncryptionMethod)
	assert.True(t, strings.HasPrefix(e.Content, "gcm:0:"))
	assert.NotContains(t, e.Content, "milk")

	require.NoError(t, m.Decrypt(e))
	assert.False(t, e.IsEncrypted)
	assert.Equal(t, "remember the milk", e.Content)
	assert.Empty(t, e.Metadata.EncryptionMethod)
}

func TestPlaintextEntriesUntouched(t *testing.T) {
	m := newTestManager(t)
	e := encEntry("alice", model.TypeSession, model.PriorityNormal, "scratch data")

	require.NoError(t, m.Encrypt(e))
	assert.False(t, e.IsEncrypted)
	assert.Equal(t, "scratch data", e.Content)

	// Decrypt of a plaintext entry is a no-op.
	require.NoError(t, m.Decrypt(e))
	assert.Equal(t, "scratch data", e.Content)
}

func TestEncryptIdempotent(t *testing.T) {
	m := newTestManager(t)
	e := encEntry("alice", model.TypeWorking, model.PriorityNormal, "once")

	require.NoError(t, m.Encrypt(e))
	first := e.Content
	require.NoError(t, m.Encrypt(e))
	assert.Equal(t, first, e.Content, "double encryption must not re-wrap")
}

func TestHybridRoundTrip(t *testing.T) {
	m := newTestManager(t)
	long := strings.Repeat("a sensitive paragraph. ", 100) // well past the RSA block limit
	e := encEntry("alice", model.TypeLongTerm, model.PriorityHigh, long)

	require.NoError(t, m.Encrypt(e))
	require.True(t, e.IsEncrypted)
	assert.Equal(t, MethodAsymmetric, e.Metadata.EncryptionMethod)
	assert.True(t, strings.HasPrefix(e.Content, "rsa:0:"))

	require.NoError(t, m.Decrypt(e))
	assert.Equal(t, long, e.Content)
}

func TestUserKeysAreIndependent(t *testing.T) {
	m := newTestManager(t)

	a := encEntry("alice", model.TypeWorking, model.PriorityNormal, "alice secret")
	require.NoError(t, m.Encrypt(a))

	// Re-labelling the ciphertext as bob's must not decrypt.
	stolen := *a
	stolen.UserID = "bob"
	err := m.Decrypt(&stolen)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDecryption)
	// Failure leaves the entry unmodified.
	assert.True(t, stolen.IsEncrypted)
	assert.Equal(t, a.Content, stolen.Content)
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	m := newTestManager(t)

	e := encEntry("alice", model.TypeWorking, model.PriorityNormal, "garbage")
	e.IsEncrypted = true
	e.Metadata.EncryptionMethod = MethodSymmetric
	e.Content = "not-an-envelope"

	err := m.Decrypt(e)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDecryption)
	assert.Equal(t, "not-an-envelope", e.Content)

	e.Metadata.EncryptionMethod = "rot13"
	err = m.Decrypt(e)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDecryption)
}

func TestRotationPreservesOldEntries(t *testing.T) {
	m := newTestManager(t)

	old := encEntry("alice", model.TypeWorking, model.PriorityNormal, "written before rotation")
	require.NoError(t, m.Encrypt(old))

	m.RotateKey("alice")

	fresh := encEntry("alice", model.TypeWorking, model.PriorityNormal, "written after rotation")
	require.NoError(t, m.Encrypt(fresh))
	assert.True(t, strings.HasPrefix(fresh.Content, "gcm:1:"), "new writes use the new epoch")

	// Both generations stay readable through their recorded epochs.
	require.NoError(t, m.Decrypt(old))
	assert.Equal(t, "written before rotation", old.Content)
	require.NoError(t, m.Decrypt(fresh))
	assert.Equal(t, "written after rotation", fresh.Content)
}

func TestRotationHybrid(t *testing.T) {
	m := newTestManager(t)

	old := encEntry("alice", model.TypePattern, model.PriorityCritical, "pre-rotation pattern")
	require.NoError(t, m.Encrypt(old))

	m.RotateKey("alice")

	fresh := encEntry("alice", model.TypePattern, model.PriorityCritical, "post-rotation pattern")
	require.NoError(t, m.Encrypt(fresh))
	assert.True(t, strings.HasPrefix(fresh.Content, "rsa:1:"))

	require.NoError(t, m.Decrypt(old))
	assert.Equal(t, "pre-rotation pattern", old.Content)
	require.NoError(t, m.Decrypt(fresh))
	assert.Equal(t, "post-rotation pattern", fresh.Content)
}

func TestShouldRotateKey(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(config.EncryptionConfig{
		MasterKey:        testMasterKey,
		KeyStoreDir:      dir,
		KDFIterations:    1000,
		KeyCacheTTL:      time.Minute,
		RotationInterval: time.Nanosecond,
	}, logger.Nop())
	require.NoError(t, err)

	assert.False(t, m.ShouldRotateKey("alice"), "never-rotated users are not due")

	m.RotateKey("alice")
	time.Sleep(time.Millisecond)
	assert.True(t, m.ShouldRotateKey("alice"))
}

func TestMasterKeyValidation(t *testing.T) {
	_, err := NewManager(config.EncryptionConfig{
		MasterKey:   "not base64!!!",
		KeyStoreDir: t.TempDir(),
	}, logger.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	_, err = NewManager(config.EncryptionConfig{
		MasterKey:   base64.StdEncoding.EncodeToString([]byte("short")),
		KeyStoreDir: t.TempDir(),
	}, logger.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestDeriveUserKeyDeterministic(t *testing.T) {
	master := []byte("0123456789abcdef0123456789abcdef")
	k1 := deriveUserKey(master, "alice", 0, 1000)
	k2 := deriveUserKey(master, "alice", 0, 1000)
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, deriveUserKey(master, "bob", 0, 1000))
	assert.NotEqual(t, k1, deriveUserKey(master, "alice", 1, 1000))
}
