package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/spf13/afero"

	"github.com/nkhmaladze/BufferManagerDB/internal/storage"
)

const (
	metaFileSuffix = ".meta.json"
	dataFileSuffix = ".rel"

	DefaultDir = "catalog"
)

var (
	ErrNotFound      = errors.New("catalog: entry not found")
	ErrDuplicateName = errors.New("catalog: name already registered")
	ErrInvalidName   = errors.New("catalog: invalid name")
)

// Entry is the persisted metadata of one file.
type Entry struct {
	ID        storage.FileID `json:"id"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
}

// FileName is the data file backing the entry.
func (e Entry) FileName() string { return e.Name + dataFileSuffix }

// Catalog maps file ids to names. Every entry lives in its own meta file
// <dir>/<id>.meta.json; FileName lookups go through a ristretto cache.
type Catalog struct {
	fs  afero.Fs
	dir string

	mu      sync.Mutex
	entries map[storage.FileID]Entry
	byName  map[string]storage.FileID
	next    storage.FileID

	names *ristretto.Cache[uint64, string]
}

// Open loads every meta file under dir, creating dir if needed.
func Open(fsys afero.Fs, dir string) (*Catalog, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := fsys.MkdirAll(dir, storage.FileMode0755); err != nil {
		return nil, fmt.Errorf("catalog: mkdir %s: %w", dir, err)
	}

	names, err := ristretto.NewCache(&ristretto.Config[uint64, string]{
		NumCounters: 1 << 12,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: name cache: %w", err)
	}

	c := &Catalog{
		fs:      fsys,
		dir:     dir,
		entries: make(map[storage.FileID]Entry),
		byName:  make(map[string]storage.FileID),
		names:   names,
	}
	if err := c.load(); err != nil {
		names.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) metaPath(id storage.FileID) string {
	return path.Join(c.dir, strconv.FormatUint(uint64(id), 10)+metaFileSuffix)
}

func (c *Catalog) load() error {
	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return fmt.Errorf("catalog: read dir: %w", err)
	}

	for _, fi := range infos {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), metaFileSuffix) {
			continue
		}
		data, err := afero.ReadFile(c.fs, path.Join(c.dir, fi.Name()))
		if err != nil {
			return err
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("catalog: %s: %w", fi.Name(), err)
		}
		c.entries[e.ID] = e
		c.byName[e.Name] = e.ID
		if e.ID >= c.next {
			c.next = e.ID + 1
		}
	}

	slog.Debug("catalog: loaded", "dir", c.dir, "entries", len(c.entries))
	return nil
}

// AddEntry registers name under a fresh file id and persists its meta file.
func (c *Catalog) AddEntry(name string) (storage.FileID, error) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return storage.InvalidFileID, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[name]; ok {
		return storage.InvalidFileID, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	e := Entry{ID: c.next, Name: name, CreatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(&e, "", "  ")
	if err != nil {
		return storage.InvalidFileID, err
	}
	if err := afero.WriteFile(c.fs, c.metaPath(e.ID), data, storage.FileMode0644); err != nil {
		return storage.InvalidFileID, err
	}

	c.entries[e.ID] = e
	c.byName[name] = e.ID
	c.next++
	return e.ID, nil
}

// FileName implements storage.Namer.
func (c *Catalog) FileName(id storage.FileID) (string, error) {
	if name, ok := c.names.Get(uint64(id)); ok {
		return name, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return "", fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	name := e.FileName()
	c.names.Set(uint64(id), name, int64(len(name)))
	return name, nil
}

// Lookup returns the id registered for name.
func (c *Catalog) Lookup(name string) (storage.FileID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byName[name]
	if !ok {
		return storage.InvalidFileID, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return id, nil
}

// RemoveEntry deletes the meta file of id.
func (c *Catalog) RemoveEntry(id storage.FileID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err := c.fs.Remove(c.metaPath(id)); err != nil {
		return err
	}

	delete(c.entries, id)
	delete(c.byName, e.Name)
	c.names.Del(uint64(id))
	return nil
}

// Entries returns all entries ordered by id.
func (c *Catalog) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Close() {
	c.names.Close()
}
