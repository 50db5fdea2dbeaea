// Package encryption manages the key hierarchy and entry encryption:
// one process master key, deterministically-derived per-user keys, AES-GCM
// for symmetric entries and hybrid RSA+AES envelopes for the most
// sensitive memory.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"

	"github.com/tbh-ai/secure-agent-memory/config"
	"github.com/tbh-ai/secure-agent-memory/model"
)

// Method tags recorded in entry metadata.
const (
	MethodSymmetric  = "aes256-gcm"
	MethodAsymmetric = "rsa-hybrid"
)

// Manager implements the encryption side of the security pipeline.
type Manager struct {
	master     []byte
	iterations int
	cache      *ristretto.Cache
	cacheTTL   time.Duration
	keys       *keyStore
	rotation   time.Duration

	mu        sync.Mutex
	epochs    map[string]int
	rotatedAt map[string]time.Time

	log zerolog.Logger
}

// NewManager loads the master key and prepares the derived-key cache.
func NewManager(cfg config.EncryptionConfig, log zerolog.Logger) (*Manager, error) {
	master, err := loadMasterKey(cfg.MasterKey, cfg.KeyPath)
	if err != nil {
		return nil, err
	}
	keys, err := newKeyStore(cfg.KeyStoreDir)
	if err != nil {
		return nil, err
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 14,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("key cache: %w", err)
	}
	return &Manager{
		master:     master,
		iterations: cfg.KDFIterations,
		cache:      cache,
		cacheTTL:   cfg.KeyCacheTTL,
		keys:       keys,
		rotation:   cfg.RotationInterval,
		epochs:     make(map[string]int),
		rotatedAt:  make(map[string]time.Time),
		log:        log,
	}, nil
}

// SelectMethod decides the cipher for an entry from its type and priority.
// Returns an empty string when the entry stays plaintext.
func SelectMethod(t model.MemoryType, p model.Priority) string {
	escalated := p == model.PriorityHigh || p == model.PriorityCritical
	if (t == model.TypeLongTerm || t == model.TypePattern) && escalated {
		return MethodAsymmetric
	}
	switch t {
	case model.TypeWorking, model.TypePreference, model.TypeLongTerm, model.TypePattern:
		return MethodSymmetric
	case model.TypeSession:
		if escalated {
			return MethodSymmetric
		}
	}
	return ""
}

// Encrypt replaces the entry content with ciphertext when its type and
// priority mandate it. On failure the entry is returned unmodified.
func (m *Manager) Encrypt(entry *model.MemoryEntry) error {
	if entry.IsEncrypted {
		return nil
	}
	method := SelectMethod(entry.Type, entry.Metadata.Priority)
	if method == "" {
		return nil
	}

	var ciphertext string
	var err error
	switch method {
	case MethodSymmetric:
		ciphertext, err = m.encryptSymmetric(entry.UserID, entry.Content)
	case MethodAsymmetric:
		ciphertext, err = m.encryptHybrid(entry.UserID, entry.Content)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrEncryption, err)
	}

	entry.Content = ciphertext
	entry.IsEncrypted = true
	entry.Metadata.EncryptionMethod = method
	return nil
}

// Decrypt restores plaintext content. On failure the entry is returned
// unmodified rather than corrupted.
func (m *Manager) Decrypt(entry *model.MemoryEntry) error {
	if !entry.IsEncrypted {
		return nil
	}

	var plaintext string
	var err error
	switch entry.Metadata.EncryptionMethod {
	case MethodSymmetric:
		plaintext, err = m.decryptSymmetric(entry.UserID, entry.Content)
	case MethodAsymmetric:
		plaintext, err = m.decryptHybrid(entry.UserID, entry.Content)
	default:
		err = fmt.Errorf("unknown encryption method %q", entry.Metadata.EncryptionMethod)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrDecryption, err)
	}

	entry.Content = plaintext
	entry.IsEncrypted = false
	entry.Metadata.EncryptionMethod = ""
	return nil
}

// RotateKey bumps the user's key epoch and drops cached key material.
// Existing rows are not re-encrypted; entries written before rotation
// remain readable through their recorded epoch. Re-encrypting old rows is
// an operational follow-up, not a side effect of rotation.
func (m *Manager) RotateKey(userID string) {
	m.mu.Lock()
	m.epochs[userID]++
	epoch := m.epochs[userID]
	m.rotatedAt[userID] = time.Now().UTC()
	m.mu.Unlock()

	// Invalidate every cached epoch for the user.
	for e := 0; e <= epoch; e++ {
		m.cache.Del(cacheKey(userID, e))
	}
	m.log.Info().Str("user", userID).Int("epoch", epoch).Msg("user key rotated")
}

// ShouldRotateKey reports whether the user's key material is older than
// the configured rotation interval.
func (m *Manager) ShouldRotateKey(userID string) bool {
	if m.rotation <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.rotatedAt[userID]
	if !ok {
		// Never rotated; age counts from first use, which we do not track,
		// so default to not due.
		return false
	}
	return time.Since(last) >= m.rotation
}

func (m *Manager) currentEpoch(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epochs[userID]
}

func cacheKey(userID string, epoch int) string {
	return userID + ":" + strconv.Itoa(epoch)
}

// userKey returns the derived key for the user and epoch, consulting the
// cache first since derivation is deliberately slow.
func (m *Manager) userKey(userID string, epoch int) []byte {
	ck := cacheKey(userID, epoch)
	if v, ok := m.cache.Get(ck); ok {
		if key, ok := v.([]byte); ok {
			return key
		}
	}
	key := deriveUserKey(m.master, userID, epoch, m.iterations)
	m.cache.SetWithTTL(ck, key, int64(len(key)), m.cacheTTL)
	return key
}

// Symmetric envelope: gcm:<epoch>:<base64(nonce||ciphertext)>.

func (m *Manager) encryptSymmetric(userID, plaintext string) (string, error) {
	epoch := m.currentEpoch(userID)
	aead, err := newGCM(m.userKey(userID, epoch))
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(userID))
	return fmt.Sprintf("gcm:%d:%s", epoch, base64.StdEncoding.EncodeToString(sealed)), nil
}

func (m *Manager) decryptSymmetric(userID, envelope string) (string, error) {
	parts := strings.SplitN(envelope, ":", 3)
	if len(parts) != 3 || parts[0] != "gcm" {
		return "", fmt.Errorf("malformed symmetric envelope")
	}
	epoch, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("malformed envelope epoch")
	}
	sealed, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decode envelope: %v", err)
	}

	aead, err := newGCM(m.userKey(userID, epoch))
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("envelope too short")
	}
	plaintext, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], []byte(userID))
	if err != nil {
		return "", fmt.Errorf("open: %v", err)
	}
	return string(plaintext), nil
}

// Hybrid envelope: rsa:<epoch>:<base64 JSON{ek, n, c}> where ek is the
// one-time AES key encrypted under the user's RSA public key. Payloads
// always go through AES; RSA only ever sees the 32-byte key, so the RSA
// plaintext limit never applies to content.

type hybridEnvelope struct {
	EncryptedKey []byte `json:"ek"`
	Nonce        []byte `json:"n"`
	Ciphertext   []byte `json:"c"`
}

func (m *Manager) encryptHybrid(userID, plaintext string) (string, error) {
	epoch := m.currentEpoch(userID)
	keypair, err := m.keys.keypair(userID, epoch)
	if err != nil {
		return "", err
	}

	contentKey := make([]byte, 32)
	if _, err := rand.Read(contentKey); err != nil {
		return "", err
	}
	aead, err := newGCM(contentKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	encKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &keypair.PublicKey, contentKey, []byte(userID))
	if err != nil {
		return "", fmt.Errorf("wrap content key: %v", err)
	}

	env := hybridEnvelope{
		EncryptedKey: encKey,
		Nonce:        nonce,
		Ciphertext:   aead.Seal(nil, nonce, []byte(plaintext), []byte(userID)),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rsa:%d:%s", epoch, base64.StdEncoding.EncodeToString(raw)), nil
}

func (m *Manager) decryptHybrid(userID, envelope string) (string, error) {
	parts := strings.SplitN(envelope, ":", 3)
	if len(parts) != 3 || parts[0] != "rsa" {
		return "", fmt.Errorf("malformed hybrid envelope")
	}
	epoch, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("malformed envelope epoch")
	}
	raw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decode envelope: %v", err)
	}
	var env hybridEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("parse envelope: %v", err)
	}

	keypair, err := m.keys.keypair(userID, epoch)
	if err != nil {
		return "", err
	}
	contentKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, keypair, env.EncryptedKey, []byte(userID))
	if err != nil {
		return "", fmt.Errorf("unwrap content key: %v", err)
	}
	aead, err := newGCM(contentKey)
	if err != nil {
		return "", err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(userID))
	if err != nil {
		return "", fmt.Errorf("open: %v", err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
