package profiles

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myquery/myquery/internal/database"
	"github.com/myquery/myquery/internal/secrets"
)

type brokenVault struct{}

func (brokenVault) Get(string) (string, error) { return "", secrets.ErrNotFound }
func (brokenVault) Set(string, string) error   { return errors.New("no keyring backend") }
func (brokenVault) Delete(string) error        { return nil }

func TestMissingFileIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "none.yaml"), nil, nil, nil)
	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaveListRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "connections.yaml")
	vault := secrets.NewKeyring(keyring.NewArrayKeyring(nil))
	store := NewStore(path, vault, nil, nil)

	stored, err := store.Save(Profile{Name: "west", Type: "postgres", Database: "sales", User: "app"}, "pw")
	require.NoError(t, err)
	assert.True(t, stored)
	_, err = store.Save(Profile{Name: "east", Type: "sqlite", Database: "east.db"}, "")
	require.NoError(t, err)
	_, err = store.Save(Profile{Name: "west", Type: "postgresql", Database: "sales_v2", User: "app"}, "")
	require.NoError(t, err)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "east", list[0].Name)
	assert.Equal(t, "sales_v2", list[1].Database)
	assert.Equal(t, "postgresql", list[1].Type)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "pw")
	assert.Contains(t, string(raw), "version: 1")

	params, err := store.Params(list[1])
	require.NoError(t, err)
	assert.Equal(t, database.Params{Type: database.Postgres, Name: "sales_v2", User: "app", Password: "pw"}, params)

	require.NoError(t, store.Remove("west"))
	_, err = vault.Get("west")
	assert.True(t, errors.Is(err, secrets.ErrNotFound))
	assert.True(t, errors.Is(store.Remove("west"), ErrNotFound))
	_, err = store.Get("west")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveFallsBackToEnvironment(t *testing.T) {
	env := map[string]string{"MYQUERY_PASSWORD_SALES_EU": "env-pw"}
	store := NewStore(filepath.Join(t.TempDir(), "c.yaml"), brokenVault{}, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}, nil)

	stored, err := store.Save(Profile{Name: "sales-eu", Type: "mysql", Database: "shop", User: "root"}, "typed")
	require.NoError(t, err)
	assert.False(t, stored)

	profile, err := store.Get("sales-eu")
	require.NoError(t, err)
	params, err := store.Params(profile)
	require.NoError(t, err)
	assert.Equal(t, "env-pw", params.Password)
}

func TestSaveValidates(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "c.yaml"), nil, nil, nil)
	_, err := store.Save(Profile{Name: " ", Type: "sqlite"}, "")
	assert.Error(t, err)
	_, err = store.Save(Profile{Name: "x", Type: "oracle"}, "")
	assert.True(t, errors.Is(err, database.ErrUnsupportedType))
}

func TestRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 9\nconnections: []\n"), 0o600))
	_, err := NewStore(path, nil, nil, nil).List()
	assert.ErrorContains(t, err, "unsupported profiles version 9")
}
