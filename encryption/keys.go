package encryption

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tbh-ai/secure-agent-memory/model"
)

const masterKeySize = 32

// loadMasterKey resolves the process master key: environment value first,
// then the key file, else a freshly generated key persisted with
// owner-only permissions.
func loadMasterKey(encoded, keyPath string) ([]byte, error) {
	if encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: decode master key: %v", model.ErrConfiguration, err)
		}
		if len(key) != masterKeySize {
			return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", model.ErrConfiguration, masterKeySize, len(key))
		}
		return key, nil
	}

	if keyPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: resolve home dir: %v", model.ErrConfiguration, err)
		}
		keyPath = filepath.Join(home, ".secure-memory", "master.key")
	}

	if raw, err := os.ReadFile(keyPath); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil || len(key) != masterKeySize {
			return nil, fmt.Errorf("%w: corrupt master key file %s", model.ErrConfiguration, keyPath)
		}
		return key, nil
	}

	key := make([]byte, masterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(base64.StdEncoding.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("persist master key: %w", err)
	}
	return key, nil
}

// deriveUserKey derives the per-user symmetric key from the master key,
// user id and key epoch. Deterministic, so no per-user key needs storing;
// slow by design, so callers cache the result.
func deriveUserKey(master []byte, userID string, epoch, iterations int) []byte {
	salt := []byte(fmt.Sprintf("secure-memory:user:%s:epoch:%d", userID, epoch))
	return pbkdf2.Key(master, salt, iterations, 32, sha256.New)
}

// keyStore holds asymmetric private keys in a separate, access-restricted
// directory, never co-located with the ciphertext they protect.
type keyStore struct {
	dir string
}

func newKeyStore(dir string) (*keyStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: resolve home dir: %v", model.ErrConfiguration, err)
		}
		dir = filepath.Join(home, ".secure-memory", "keys")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key store: %w", err)
	}
	return &keyStore{dir: dir}, nil
}

func (ks *keyStore) path(userID string, epoch int) string {
	return filepath.Join(ks.dir, fmt.Sprintf("%s.%d.pem", userID, epoch))
}

// keypair loads the user's RSA keypair for the given epoch, generating and
// persisting a new one when absent.
func (ks *keyStore) keypair(userID string, epoch int) (*rsa.PrivateKey, error) {
	p := ks.path(userID, epoch)
	if raw, err := os.ReadFile(p); err == nil {
		block, _ := pem.Decode(raw)
		if block == nil {
			return nil, fmt.Errorf("%w: corrupt key file %s", model.ErrDecryption, p)
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parse key file %s: %v", model.ErrDecryption, p, err)
		}
		return key, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	raw := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(p, raw, 0o600); err != nil {
		return nil, fmt.Errorf("persist keypair: %w", err)
	}
	return key, nil
}
