// Package secrets keeps connection passwords out of the profiles file. The OS
// keyring is preferred; MYQUERY_PASSWORD_<NAME> is the fallback for machines
// without one.
package secrets

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"unicode"

	"github.com/99designs/keyring"

	"github.com/myquery/myquery/internal/config"
)

const ServiceName = "myquery"

const envPrefix = "MYQUERY_PASSWORD_"

var ErrNotFound = errors.New("secret not found")

type Store interface {
	Get(name string) (string, error)
	Set(name, password string) error
	Delete(name string) error
}

// Keyring stores one item per connection name.
type Keyring struct {
	ring keyring.Keyring
}

var _ Store = (*Keyring)(nil)

// OpenKeyring opens the platform keyring. It fails on hosts with no usable
// backend; callers fall back to environment variables.
func OpenKeyring() (*Keyring, error) {
	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowedBackends(),
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

func allowedBackends() []keyring.BackendType {
	switch runtime.GOOS {
	case "darwin":
		return []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		return []keyring.BackendType{keyring.WinCredBackend}
	default:
		return []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	}
}

func itemKey(name string) string { return "connection:" + name }

func (k *Keyring) Get(name string) (string, error) {
	item, err := k.ring.Get(itemKey(name))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

func (k *Keyring) Set(name, password string) error {
	return k.ring.Set(keyring.Item{
		Key:         itemKey(name),
		Data:        []byte(password),
		Label:       ServiceName + " " + name,
		Description: "database password",
	})
}

func (k *Keyring) Delete(name string) error {
	err := k.ring.Remove(itemKey(name))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

// EnvKey is the variable consulted for name: "sales-eu" → MYQUERY_PASSWORD_SALES_EU.
func EnvKey(name string) string {
	var b strings.Builder
	b.WriteString(envPrefix)
	for _, r := range strings.ToUpper(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// Resolver looks a password up in the store first and then in the
// environment. Either source may be absent.
type Resolver struct {
	Store  Store
	Lookup config.LookupFunc
}

func (r Resolver) Password(name string) (string, error) {
	if r.Store != nil {
		password, err := r.Store.Get(name)
		if err == nil {
			return password, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("read password for %s: %w", name, err)
		}
	}
	if r.Lookup != nil {
		if password, ok := r.Lookup(EnvKey(name)); ok {
			return password, nil
		}
	}
	return "", ErrNotFound
}
