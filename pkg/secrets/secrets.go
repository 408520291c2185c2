// Package secrets provides encrypted local storage for the datastore
// credentials the CLI needs (PostgreSQL and Redis passwords). Values are
// stored AES-256-GCM encrypted in ~/.sightline/secrets.yaml.
//
// Encryption key storage:
//   - macOS: Keychain
//   - Windows: Credential Manager
//   - Linux: Secret Service (libsecret)
//
// Headless hosts can derive the key from SIGHTLINE_ENCRYPTION_PASSPHRASE
// (Argon2id); CI environments set SIGHTLINE_ENCRYPTION_KEY to a
// 64-character hex string (32 bytes).
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
)

// Secret storage constants.
const (
	DefaultSecretsDir  = ".sightline"
	DefaultSecretsFile = "secrets.yaml"
)

// Well-known secret names resolved during config loading.
const (
	DatabasePassword = "database_password"
	RedisPassword    = "redis_password"
)

// secretsFile is the on-disk form. Values are base64-wrapped AES-GCM
// ciphertext; the salt feeds passphrase key derivation.
type secretsFile struct {
	Salt      string            `yaml:"salt,omitempty"`
	Secrets   map[string]string `yaml:"secrets"`
	UpdatedAt time.Time         `yaml:"updated_at"`
}

// Store manages encrypted secret storage operations.
type Store struct {
	dir         string
	key         []byte
	keyProvider KeyProvider
	salt        []byte
}

// NewStore creates a secret store using the default key provider chain.
func NewStore() (*Store, error) {
	dir, err := SecretsDir()
	if err != nil {
		return nil, fmt.Errorf("resolving secrets directory: %w", err)
	}

	salt, err := loadSalt(dir)
	if err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		if salt, err = GenerateSalt(); err != nil {
			return nil, err
		}
	}

	provider, err := GetDefaultKeyProvider(salt)
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}

	return newStore(dir, salt, provider)
}

// NewStoreWithKeyProvider creates a secret store with a custom key
// provider. This is primarily used for testing.
func NewStoreWithKeyProvider(provider KeyProvider) (*Store, error) {
	dir, err := SecretsDir()
	if err != nil {
		return nil, fmt.Errorf("resolving secrets directory: %w", err)
	}

	salt, err := loadSalt(dir)
	if err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		if salt, err = GenerateSalt(); err != nil {
			return nil, err
		}
	}

	return newStore(dir, salt, provider)
}

func newStore(dir string, salt []byte, provider KeyProvider) (*Store, error) {
	key, err := provider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}

	return &Store{
		dir:         dir,
		key:         key,
		keyProvider: provider,
		salt:        salt,
	}, nil
}

// SecretsDir returns the secrets directory path.
// Uses $SIGHTLINE_CONFIG_DIR if set, otherwise ~/.sightline.
func SecretsDir() (string, error) {
	if dir := os.Getenv("SIGHTLINE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultSecretsDir), nil
}

// Path returns the full path of the secrets file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, DefaultSecretsFile)
}

// KeySource describes where the encryption key comes from.
func (s *Store) KeySource() string {
	return s.keyProvider.Description()
}

// Set encrypts and stores one named secret.
func (s *Store) Set(name, value string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("secret name is required: %w", slerrors.ErrValidation)
	}

	f, err := s.read()
	if err != nil {
		return err
	}

	encrypted, err := s.encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting secret %q: %w", name, err)
	}
	f.Secrets[name] = encrypted

	return s.write(f)
}

// Get decrypts and returns one named secret.
func (s *Store) Get(name string) (string, error) {
	f, err := s.read()
	if err != nil {
		return "", err
	}

	encrypted, ok := f.Secrets[name]
	if !ok {
		return "", fmt.Errorf("secret %q: %w", name, slerrors.ErrNotFound)
	}

	value, err := s.decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypting secret %q: %w", name, err)
	}
	return value, nil
}

// Delete removes one named secret. Deleting a missing secret is a no-op.
func (s *Store) Delete(name string) error {
	f, err := s.read()
	if err != nil {
		return err
	}

	if _, ok := f.Secrets[name]; !ok {
		return nil
	}
	delete(f.Secrets, name)

	return s.write(f)
}

// List returns the stored secret names in sorted order, never values.
func (s *Store) List() ([]string, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(f.Secrets))
	for name := range f.Secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// read loads the secrets file, returning an empty form when absent.
func (s *Store) read() (*secretsFile, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &secretsFile{Secrets: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}

	var f secretsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	if f.Secrets == nil {
		f.Secrets = map[string]string{}
	}
	return &f, nil
}

// write persists the secrets file with restrictive permissions.
func (s *Store) write(f *secretsFile) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating secrets directory: %w", err)
	}

	f.Salt = base64.StdEncoding.EncodeToString(s.salt)
	f.UpdatedAt = time.Now()

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling secrets: %w", err)
	}

	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("writing secrets file: %w", err)
	}
	return nil
}

// loadSalt reads the persisted salt from an existing secrets file.
func loadSalt(dir string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, DefaultSecretsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}

	var f secretsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	if f.Salt == "" {
		return nil, nil
	}

	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return nil, fmt.Errorf("decoding stored salt: %w", err)
	}
	return salt, nil
}

// encrypt encrypts a string using AES-GCM with a random nonce prefix.
func (s *Store) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts an AES-GCM encrypted string.
func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding base64: %v", slerrors.ErrDecryptFailed, err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", slerrors.ErrDecryptFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: creating GCM: %v", slerrors.ErrDecryptFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", slerrors.ErrDecryptFailed)
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", slerrors.ErrDecryptFailed, err)
	}

	return string(plaintext), nil
}

// MaskSecret returns a masked version of a secret for display.
func MaskSecret(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
