// Package snapshot implements an optional dump-to-disk convenience
// facility: a single gzip-compressed JSON file holding every store,
// written on demand and restored once at startup, gated by
// PAPER_TIGER_SNAPSHOT_PATH. Stores are not written to separate files. It is
// explicitly not a durability guarantee — no fsync discipline, no
// write-ahead log, no partial-write recovery beyond "the file didn't
// parse, so skip it."
package snapshot

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/EnaiaInc/paper-tiger/pkg/store"
)

// envelope is the on-disk shape: one ordered list of (table, objects)
// pairs, encoded as JSON before gzip so the file is still greppable after
// a manual gunzip.
type envelope struct {
	Tables []tableDump `json:"tables"`
}

type tableDump struct {
	Name    string         `json:"name"`
	Objects []*store.Object `json:"objects"`
}

// Save writes every registered store's full contents to path as
// gzip-compressed JSON, overwriting any existing file.
func Save(registry *store.Registry, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()

	env := envelope{}
	for _, name := range registry.All() {
		s := registry.Get(name)
		if s == nil {
			continue
		}
		env.Tables = append(env.Tables, tableDump{Name: name, Objects: s.All()})
	}

	if err := json.NewEncoder(gz).Encode(env); err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	return nil
}

// Load restores every table dumped in the file at path into registry,
// replacing each matching store's current contents. Tables in the
// snapshot that aren't registered (e.g. from an older resource catalog)
// are skipped rather than erroring, since a stale snapshot shouldn't
// block startup.
func Load(registry *store.Registry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("snapshot: gzip reader: %w", err)
	}
	defer gz.Close()

	var env envelope
	if err := json.NewDecoder(gz).Decode(&env); err != nil && err != io.EOF {
		return fmt.Errorf("snapshot: decode: %w", err)
	}

	for _, table := range env.Tables {
		s := registry.Get(table.Name)
		if s == nil {
			continue
		}
		s.LoadAll(table.Objects)
	}
	return nil
}
