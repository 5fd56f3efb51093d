package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dawsonjb/buffermgr/internal"
	"github.com/dawsonjb/buffermgr/internal/bufmgr"
	"github.com/dawsonjb/buffermgr/internal/storage"
)

var (
	ErrDatabaseClosed = errors.New("buffermgr: database is closed")
	ErrFileExists     = errors.New("buffermgr: file already exists")
)

// Database owns the page files under a data directory and one shared
// buffer pool through which all page access goes. It hands out exactly
// one File handle per path, so handle equality and file identity
// coincide.
type Database struct {
	DataDir string
	Buf     *bufmgr.Manager

	mu     sync.Mutex
	files  map[string]*storage.File
	closed bool
}

// Open creates the data directory if needed and sets up the shared
// buffer pool with numBufs frames.
func Open(dataDir string, numBufs int) (*Database, error) {
	if err := os.MkdirAll(dataDir, storage.FileMode0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Database{
		DataDir: dataDir,
		Buf:     bufmgr.NewManager(numBufs),
		files:   make(map[string]*storage.File),
	}, nil
}

// FromConfig opens a database from a loaded configuration.
func FromConfig(cfg *internal.BufferMgrConfig) (*Database, error) {
	if cfg.Buffer.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	return Open(cfg.Storage.Dir, cfg.Buffer.NumBufs)
}

func (db *Database) filePath(name string) string {
	return filepath.Join(db.DataDir, name)
}

// OpenFile opens or creates the named page file and registers it.
// Subsequent calls for the same name return the same handle.
func (db *Database) OpenFile(name string) (*storage.File, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}
	path := db.filePath(name)
	if f, ok := db.files[path]; ok {
		return f, nil
	}
	f, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	db.files[path] = f
	return f, nil
}

// CreateFile creates and registers a new page file. Unlike OpenFile it
// fails with ErrFileExists when a file of that name is already present,
// registered or on disk.
func (db *Database) CreateFile(name string) (*storage.File, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}
	path := db.filePath(name)
	if _, ok := db.files[path]; ok {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, name)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, name)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat page file: %w", err)
	}
	f, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	db.files[path] = f
	return f, nil
}

// RemoveFile flushes the file's pages out of the pool, closes the
// handle and deletes the file from disk. Fails if any page of the file
// is still pinned.
func (db *Database) RemoveFile(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseClosed
	}
	path := db.filePath(name)
	f, ok := db.files[path]
	if !ok {
		opened, err := storage.OpenFile(path)
		if err != nil {
			return err
		}
		f = opened
		db.files[path] = f
	}

	if err := db.Buf.FlushFile(f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	delete(db.files, path)
	return os.Remove(path)
}

// Close flushes every open file through the pool and closes the
// handles. The database cannot be used afterwards.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	for path, f := range db.files {
		if err := db.Buf.FlushFile(f); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			slog.Error("close database: flush file", "file", path, "err", err)
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(db.files, path)
	}
	return firstErr
}
