package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/nkhmaladze/BufferManagerDB/internal"
	"github.com/nkhmaladze/BufferManagerDB/internal/bufferpool"
	"github.com/nkhmaladze/BufferManagerDB/internal/catalog"
	"github.com/nkhmaladze/BufferManagerDB/internal/storage"
)

var (
	ErrDatabaseClosed = errors.New("engine: database is closed")
	// ErrStaleEntry means a file was removed but its catalog entry was not;
	// the name stays taken until the entry is removed.
	ErrStaleEntry = errors.New("engine: catalog entry outlived its file")
)

type Options struct {
	Fs         afero.Fs // nil means an in-memory filesystem
	CatalogDir string
	Disk       storage.DiskOptions
	Pool       bufferpool.Options
}

// Database wires a catalog, a disk manager and one shared buffer pool over
// a single filesystem. Files are addressed by name.
type Database struct {
	Catalog *catalog.Catalog
	Disk    *storage.DiskManager
	Pool    *bufferpool.BufferManager

	mu     sync.Mutex
	closed bool
}

func Open(opts Options) (*Database, error) {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewMemMapFs()
	}

	cat, err := catalog.Open(fs, opts.CatalogDir)
	if err != nil {
		return nil, err
	}
	disk, err := storage.NewDiskManager(fs, cat, opts.Disk)
	if err != nil {
		cat.Close()
		return nil, err
	}
	pool, err := bufferpool.New(disk, opts.Pool)
	if err != nil {
		cat.Close()
		return nil, multierr.Append(err, disk.Close())
	}

	return &Database{Catalog: cat, Disk: disk, Pool: pool}, nil
}

// OpenConfig opens a database as described by cfg: in memory, or rooted at
// the configured workdir.
func OpenConfig(cfg *internal.Config) (*Database, error) {
	var fs afero.Fs
	if cfg.Storage.InMemory {
		fs = afero.NewMemMapFs()
	} else {
		osFs := afero.NewOsFs()
		if err := osFs.MkdirAll(cfg.Storage.Workdir, storage.FileMode0755); err != nil {
			return nil, fmt.Errorf("engine: workdir: %w", err)
		}
		fs = afero.NewBasePathFs(osFs, cfg.Storage.Workdir)
	}

	return Open(Options{
		Fs:   fs,
		Disk: cfg.DiskOptions(),
		Pool: cfg.PoolOptions(),
	})
}

func (db *Database) checkOpen() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	return nil
}

// CreateFile registers name in the catalog and creates its backing file.
func (db *Database) CreateFile(name string) (storage.FileID, error) {
	if err := db.checkOpen(); err != nil {
		return storage.InvalidFileID, err
	}

	id, err := db.Catalog.AddEntry(name)
	if err != nil {
		return storage.InvalidFileID, err
	}
	if err := db.Pool.CreateFile(id); err != nil {
		return storage.InvalidFileID, multierr.Append(err, db.Catalog.RemoveEntry(id))
	}

	slog.Debug("engine: file created", "name", name, "id", id)
	return id, nil
}

// OpenFile returns a page view over an existing file.
func (db *Database) OpenFile(name string) (*bufferpool.FileView, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}

	id, err := db.Catalog.Lookup(name)
	if err != nil {
		return nil, err
	}
	return db.Pool.View(id), nil
}

// DropFile removes the file from the pool, the disk and the catalog.
func (db *Database) DropFile(name string) error {
	if err := db.checkOpen(); err != nil {
		return err
	}

	id, err := db.Catalog.Lookup(name)
	if err != nil {
		return err
	}
	if err := db.Pool.RemoveFile(id); err != nil {
		return err
	}
	if err := db.Catalog.RemoveEntry(id); err != nil {
		slog.Warn("engine: file removed, catalog entry kept", "name", name, "id", id, "err", err)
		return fmt.Errorf("%w: %q (file %d): %w", ErrStaleEntry, name, id, err)
	}
	return nil
}

// Close flushes the pool and releases every open handle.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseClosed
	}
	db.closed = true

	err := db.Pool.Close()
	err = multierr.Append(err, db.Disk.Close())
	db.Catalog.Close()
	return err
}
