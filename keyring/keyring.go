// Package keyring provides secure credential storage.
// It uses the system keyring when available, falling back to
// encrypted local file storage when not.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"

	"github.com/yllada/merlink/common"
)

// Common errors returned by keyring operations.
var (
	ErrNotFound     = common.ErrCredentialsNotFound
	ErrStorage      = common.ErrCredentialStorage
	ErrEmptyAccount = errors.New("account cannot be empty")
)

// argon2id parameters for the file fallback key.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	kdfKeyLen  = 32
)

// Store keeps dashboard passwords per account. It implements
// common.CredentialStore.
type Store struct {
	service string
	path    string

	once    sync.Once
	mu      sync.RWMutex
	local   bool
	key     []byte
	entries map[string]string
}

var _ common.CredentialStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithService overrides the keyring service name.
func WithService(name string) Option {
	return func(s *Store) { s.service = name }
}

// WithFile sets the path of the encrypted fallback file.
func WithFile(path string) Option {
	return func(s *Store) { s.path = path }
}

// New creates a Store. The backend is chosen on first use.
func New(opts ...Option) *Store {
	s := &Store{
		service: common.KeyringService,
		entries: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.path == "" {
		s.path = defaultFile()
	}
	return s
}

func defaultFile() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", common.ConfigDirName, common.CredentialsFileName)
}

// init picks the backend: the system keyring if a probe write succeeds,
// otherwise the local encrypted file.
func (s *Store) init() {
	s.once.Do(func() {
		probe := s.service + "-probe"
		if err := keyring.Set(s.service, probe, "probe"); err == nil {
			_ = keyring.Delete(s.service, probe)
			return
		}
		common.LogDebug("System keyring unavailable, using %s", s.path)
		s.useLocal()
	})
}

// useLocal switches to the file backend. Callers must not hold s.mu.
func (s *Store) useLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local {
		return
	}
	s.local = true
	s.key = deriveKey(s.service)
	s.loadLocked()
}

// deriveKey derives the file key from machine-specific data.
func deriveKey(service string) []byte {
	hostname, _ := os.Hostname()
	keyData := fmt.Sprintf("%s-%s-%s-%d", service, hostname, getMachineID(), os.Getuid())
	salt := []byte(service + "-credentials")
	return argon2.IDKey([]byte(keyData), salt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen)
}

func getMachineID() string {
	data, err := os.ReadFile("/etc/machine-id")
	if err == nil {
		return strings.TrimSpace(string(data))
	}
	return "default-machine-id"
}

func (s *Store) loadLocked() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	decrypted, err := decrypt(s.key, data)
	if err != nil {
		common.LogWarn("Ignoring unreadable credentials file %s: %v", s.path, err)
		return
	}
	if err := json.Unmarshal(decrypted, &s.entries); err != nil {
		common.LogWarn("Ignoring malformed credentials file %s: %v", s.path, err)
	}
}

func (s *Store) saveLocked() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return err
	}
	encrypted, err := encrypt(s.key, data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, encrypted, 0o600)
}

func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func decrypt(key, data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (s *Store) isLocal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

func (s *Store) storeLocal(account, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[account] = password
	if err := s.saveLocked(); err != nil {
		return common.JoinSentinel(ErrStorage, err)
	}
	return nil
}

// Store saves the password for account.
func (s *Store) Store(account, password string) error {
	if account == "" {
		return ErrEmptyAccount
	}
	if password == "" {
		return errors.New("password cannot be empty")
	}
	s.init()

	if !s.isLocal() {
		err := keyring.Set(s.service, account, password)
		if err == nil {
			return nil
		}
		common.LogWarn("System keyring write failed, falling back to file: %v", err)
		s.useLocal()
	}
	return s.storeLocal(account, password)
}

// Get retrieves the password for account.
func (s *Store) Get(account string) (string, error) {
	if account == "" {
		return "", ErrEmptyAccount
	}
	s.init()

	if !s.isLocal() {
		password, err := keyring.Get(s.service, account)
		if err == nil {
			return password, nil
		}
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		common.LogWarn("System keyring read failed: %v", err)
	}

	s.mu.RLock()
	password, exists := s.entries[account]
	s.mu.RUnlock()
	if !exists {
		return "", ErrNotFound
	}
	return password, nil
}

// Delete removes the password for account. Deleting a missing account is
// not an error.
func (s *Store) Delete(account string) error {
	if account == "" {
		return ErrEmptyAccount
	}
	s.init()

	if !s.isLocal() {
		if err := keyring.Delete(s.service, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return common.JoinSentinel(ErrStorage, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[account]; !ok {
		return nil
	}
	delete(s.entries, account)
	if err := s.saveLocked(); err != nil {
		return common.JoinSentinel(ErrStorage, err)
	}
	return nil
}

// Exists checks if a password is stored for account.
func (s *Store) Exists(account string) bool {
	_, err := s.Get(account)
	return err == nil
}
