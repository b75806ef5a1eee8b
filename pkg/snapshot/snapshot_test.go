package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EnaiaInc/paper-tiger/pkg/store"
)

func TestSaveLoad_RoundTrips(t *testing.T) {
	registry := store.NewRegistry()
	customers := store.New("customers")
	cus := store.NewObject("cus_1", "customer", 1000)
	cus.Fields["email"] = "a@example.com"
	_, err := customers.Insert(cus)
	require.NoError(t, err)
	registry.Register("customers", customers)
	registry.Register("charges", store.New("charges"))

	path := filepath.Join(t.TempDir(), "snap.json.gz")
	require.NoError(t, Save(registry, path))

	restored := store.NewRegistry()
	restored.Register("customers", store.New("customers"))
	restored.Register("charges", store.New("charges"))
	require.NoError(t, Load(restored, path))

	obj, ok := restored.Get("customers").Get("cus_1")
	require.True(t, ok)
	assert.Equal(t, "a@example.com", obj.Fields["email"])
	assert.Equal(t, 0, restored.Get("charges").Count())
}

func TestLoad_MissingFileIsNoop(t *testing.T) {
	registry := store.NewRegistry()
	registry.Register("customers", store.New("customers"))
	err := Load(registry, filepath.Join(t.TempDir(), "does-not-exist.json.gz"))
	assert.NoError(t, err)
}

func TestLoad_SkipsUnregisteredTables(t *testing.T) {
	source := store.NewRegistry()
	source.Register("widgets", store.New("widgets"))
	w := store.NewObject("wid_1", "widget", 1)
	_, err := source.Get("widgets").Insert(w)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snap.json.gz")
	require.NoError(t, Save(source, path))

	dest := store.NewRegistry()
	dest.Register("customers", store.New("customers"))
	assert.NoError(t, Load(dest, path))
	assert.Equal(t, 0, dest.Get("customers").Count())
}
