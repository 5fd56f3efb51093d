package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawsonjb/buffermgr/internal"
	"github.com/dawsonjb/buffermgr/internal/bufmgr"
)

func writeTestConfig(t *testing.T, dataDir string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "buffermgr.yaml")
	cfg := "storage:\n  dir: " + dataDir + "\nbuffer:\n  num_bufs: 8\n  debug: false\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestFromConfig_OpensDatabase(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	cfgPath := writeTestConfig(t, dataDir)

	cfg, err := internal.LoadConfig(cfgPath)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Buffer.NumBufs)

	db, err := FromConfig(cfg)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.Equal(t, dataDir, db.DataDir)
	assert.Equal(t, 8, db.Buf.NumBufs())

	// The data directory was created.
	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenFile_SharedHandle(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "data"), 4)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	a, err := db.OpenFile("relation.db")
	require.NoError(t, err)
	b, err := db.OpenFile("relation.db")
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestCreateFile_FailsIfExists(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	db, err := Open(dataDir, 4)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	f, err := db.CreateFile("fresh.db")
	require.NoError(t, err)
	require.True(t, f.IsValid())

	// Already registered.
	_, err = db.CreateFile("fresh.db")
	require.ErrorIs(t, err, ErrFileExists)

	// Present on disk but not registered.
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "stale.db"), []byte{}, 0o644))
	_, err = db.CreateFile("stale.db")
	require.ErrorIs(t, err, ErrFileExists)

	// OpenFile still hands out the created handle.
	g, err := db.OpenFile("fresh.db")
	require.NoError(t, err)
	require.Same(t, f, g)
}

func TestCreateFile_UsableThroughPool(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "data"), 4)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	f, err := db.CreateFile("new.db")
	require.NoError(t, err)

	pn, page, err := db.Buf.AllocPage(f)
	require.NoError(t, err)
	slot, err := page.InsertRecord([]byte("first record"))
	require.NoError(t, err)
	require.NoError(t, db.Buf.UnpinPage(f, pn, true))
	require.NoError(t, db.Buf.FlushFile(f))

	ondisk, err := f.ReadPage(pn)
	require.NoError(t, err)
	rec, err := ondisk.GetRecord(slot)
	require.NoError(t, err)
	assert.Equal(t, []byte("first record"), rec)
}

func TestDatabase_WriteCloseReopenRead(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")

	db, err := Open(dataDir, 4)
	require.NoError(t, err)

	f, err := db.OpenFile("t.db")
	require.NoError(t, err)

	pn, page, err := db.Buf.AllocPage(f)
	require.NoError(t, err)
	slot, err := page.InsertRecord([]byte("survives close"))
	require.NoError(t, err)
	require.NoError(t, db.Buf.UnpinPage(f, pn, true))

	// Close flushes the dirty page through the pool.
	require.NoError(t, db.Close())

	db2, err := Open(dataDir, 4)
	require.NoError(t, err)
	defer func() { _ = db2.Close() }()

	f2, err := db2.OpenFile("t.db")
	require.NoError(t, err)
	page2, err := db2.Buf.ReadPage(f2, pn)
	require.NoError(t, err)
	rec, err := page2.GetRecord(slot)
	require.NoError(t, err)
	assert.Equal(t, []byte("survives close"), rec)
	require.NoError(t, db2.Buf.UnpinPage(f2, pn, false))
}

func TestDatabase_Close_FailsOnPinnedPages(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "data"), 4)
	require.NoError(t, err)

	f, err := db.OpenFile("pinned.db")
	require.NoError(t, err)
	_, _, err = db.Buf.AllocPage(f)
	require.NoError(t, err)

	err = db.Close()
	var pinned *bufmgr.PagePinnedError
	require.ErrorAs(t, err, &pinned)
}

func TestRemoveFile_DeletesFromDisk(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	db, err := Open(dataDir, 4)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	f, err := db.OpenFile("gone.db")
	require.NoError(t, err)
	pn, _, err := db.Buf.AllocPage(f)
	require.NoError(t, err)
	require.NoError(t, db.Buf.UnpinPage(f, pn, true))

	require.NoError(t, db.RemoveFile("gone.db"))
	_, err = os.Stat(filepath.Join(dataDir, "gone.db"))
	require.True(t, os.IsNotExist(err))

	// A new open starts from scratch.
	g, err := db.OpenFile("gone.db")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), g.NumPages())
}

func TestRemoveFile_FailsWhilePinned(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "data"), 4)
	require.NoError(t, err)

	f, err := db.OpenFile("busy.db")
	require.NoError(t, err)
	pn, _, err := db.Buf.AllocPage(f)
	require.NoError(t, err)

	err = db.RemoveFile("busy.db")
	var pinned *bufmgr.PagePinnedError
	require.ErrorAs(t, err, &pinned)

	// After unpinning, removal succeeds.
	require.NoError(t, db.Buf.UnpinPage(f, pn, false))
	require.NoError(t, db.RemoveFile("busy.db"))
}

func TestDatabase_UseAfterClose(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "data"), 4)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.OpenFile("late.db")
	require.ErrorIs(t, err, ErrDatabaseClosed)
	_, err = db.CreateFile("late.db")
	require.ErrorIs(t, err, ErrDatabaseClosed)
	require.ErrorIs(t, db.RemoveFile("late.db"), ErrDatabaseClosed)
	// Close is idempotent.
	require.NoError(t, db.Close())
}
