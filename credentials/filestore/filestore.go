// Package filestore persists credentials to a JSON file, optionally sealed
// with a passphrase.
package filestore

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-superset-kernel/credentials"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	DefaultFileName = "credentials.json"

	saltSize    = 16
	argonTime   = 1
	argonMemory = 64 * 1024
	argonLanes  = 4
)

var _ credentials.Repo = (*FileStore)(nil)

// envelope is the on-disk format. Exactly one of Values or Sealed is set.
type envelope struct {
	Values map[string]string `json:"values,omitempty"`
	Sealed *sealed           `json:"sealed,omitempty"`
}

type sealed struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FileStore implements credentials.Repo on top of a single JSON file written
// with 0600 permissions. Every write replaces the file through a rename.
type FileStore struct {
	path       string
	passphrase []byte
	lock       sync.Mutex
}

type Option func(*FileStore)

// WithPassphrase seals the file contents with ChaCha20-Poly1305 under a key
// derived from passphrase with Argon2id.
func WithPassphrase(passphrase string) Option {
	return func(s *FileStore) {
		if passphrase != "" {
			s.passphrase = []byte(passphrase)
		}
	}
}

// New creates a FileStore at path, creating its directory.
func New(path string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, pkgerrors.Wrap(err, "[filestore.New] create directory")
	}
	s := &FileStore{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewInDir creates a FileStore named DefaultFileName under dir.
func NewInDir(dir string, opts ...Option) (*FileStore, error) {
	return New(filepath.Join(dir, DefaultFileName), opts...)
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *FileStore) Put(values map[string]string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	for k, v := range values {
		current[k] = v
	}
	return s.write(current)
}

func (s *FileStore) Delete(keys ...string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(current, k)
	}
	if len(current) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return pkgerrors.Wrap(err, "[FileStore.Delete] remove")
		}
		return nil
	}
	return s.write(current)
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, pkgerrors.Wrap(err, "[FileStore.read] read file")
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, pkgerrors.Wrap(errors.Join(errors.ErrInvalidResponse, err), "[FileStore.read] decode")
	}
	if env.Sealed == nil {
		if env.Values == nil {
			env.Values = map[string]string{}
		}
		return env.Values, nil
	}
	if s.passphrase == nil {
		return nil, pkgerrors.Wrap(errors.ErrInvalidCredentials, "[FileStore.read] file is sealed and no passphrase was given")
	}

	aead, err := chacha20poly1305.New(s.key(env.Sealed.Salt))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[FileStore.read] cipher")
	}
	plain, err := aead.Open(nil, env.Sealed.Nonce, env.Sealed.Ciphertext, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(errors.Join(errors.ErrInvalidCredentials, err), "[FileStore.read] open")
	}
	values := map[string]string{}
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, pkgerrors.Wrap(errors.Join(errors.ErrInvalidResponse, err), "[FileStore.read] decode sealed values")
	}
	return values, nil
}

func (s *FileStore) write(values map[string]string) error {
	env := envelope{Values: values}
	if s.passphrase != nil {
		plain, err := json.Marshal(values)
		if err != nil {
			return pkgerrors.Wrap(err, "[FileStore.write] marshal")
		}
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return pkgerrors.Wrap(err, "[FileStore.write] salt")
		}
		aead, err := chacha20poly1305.New(s.key(salt))
		if err != nil {
			return pkgerrors.Wrap(err, "[FileStore.write] cipher")
		}
		nonce := make([]byte, aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return pkgerrors.Wrap(err, "[FileStore.write] nonce")
		}
		env = envelope{Sealed: &sealed{
			Salt:       salt,
			Nonce:      nonce,
			Ciphertext: aead.Seal(nil, nonce, plain, nil),
		}}
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "[FileStore.write] marshal envelope")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return pkgerrors.Wrap(err, "[FileStore.write] write temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return pkgerrors.Wrap(err, "[FileStore.write] rename")
	}
	return nil
}

func (s *FileStore) key(salt []byte) []byte {
	return argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonLanes, chacha20poly1305.KeySize)
}
