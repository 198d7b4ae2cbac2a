package config

import (
	"fmt"
	"os"
	"path/filepath"

	"example.com/mtui/pkg/crypto"
	"example.com/mtui/pkg/models"
	"gopkg.in/yaml.v3"
)

type Store interface {
	Load() (*Configuration, error)
	Save(cfg *Configuration) error
}

type defaultStore struct {
	Path string
	Key  []byte
}

// Load reads the inventory. A missing file yields an empty inventory so
// that hosts can still be added by address from the shell.
func (s *defaultStore) Load() (*Configuration, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return NewConfiguration(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg := NewConfiguration()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	if len(s.Key) == 0 {
		return cfg, nil
	}

	c, err := crypto.NewCrypter(s.Key)
	if err != nil {
		return nil, err
	}
	// 解密身份凭据
	for name, id := range cfg.Identities.Snapshot() {
		if id.Password, err = c.Open(id.Password); err != nil {
			return nil, fmt.Errorf("identity %s: password: %w", name, err)
		}
		if id.Passphrase, err = c.Open(id.Passphrase); err != nil {
			return nil, fmt.Errorf("identity %s: passphrase: %w", name, err)
		}
		cfg.Identities.Set(name, id)
	}
	return cfg, nil
}

// Save writes the inventory with identity secrets sealed. cfg itself
// keeps the plain values.
func (s *defaultStore) Save(cfg *Configuration) error {
	out := cfg
	if len(s.Key) > 0 {
		sealed, err := s.seal(cfg)
		if err != nil {
			return err
		}
		out = sealed
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o600)
}

func (s *defaultStore) seal(cfg *Configuration) (*Configuration, error) {
	c, err := crypto.NewCrypter(s.Key)
	if err != nil {
		return nil, err
	}
	out := NewConfiguration()
	for name, h := range cfg.Hosts.Snapshot() {
		out.Hosts.Set(name, h)
	}
	for name, n := range cfg.Nodes.Snapshot() {
		out.Nodes.Set(name, n)
	}
	for name, id := range cfg.Identities.Snapshot() {
		sealed := models.Identity{User: id.User, KeyPath: id.KeyPath, AuthType: id.AuthType}
		if sealed.Password, err = c.Seal(id.Password); err != nil {
			return nil, fmt.Errorf("identity %s: %w", name, err)
		}
		if sealed.Passphrase, err = c.Seal(id.Passphrase); err != nil {
			return nil, fmt.Errorf("identity %s: %w", name, err)
		}
		out.Identities.Set(name, sealed)
	}
	return out, nil
}

// NewDefaultStore returns a yaml file store. With a nil key the
// credentials are kept in plain text.
func NewDefaultStore(path string, key []byte) Store {
	return &defaultStore{Path: path, Key: key}
}

// OpenStore returns the store for path, sealing credentials with the
// key kept next to it in path+".key".
func OpenStore(path string) (Store, error) {
	key, err := crypto.LoadOrGenerateKey(path + ".key")
	if err != nil {
		return nil, fmt.Errorf("refhosts key: %w", err)
	}
	return NewDefaultStore(path, key), nil
}
