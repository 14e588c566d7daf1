package files_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/recalld/internal/files"
	"github.com/fyrsmithlabs/recalld/internal/logging"
)

func fileRec(id, name string, uploaded time.Time) *files.FileRecord {
	return &files.FileRecord{
		ID:               id,
		FileName:         name,
		FileType:         "txt",
		UserID:           "alice",
		ProcessingStatus: files.StatusPending,
		UploadDate:       uploaded,
		UpdatedAt:        uploaded,
	}
}

func TestLedgerUpsertGet(t *testing.T) {
	ledger, err := files.NewLedger(t.TempDir(), logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	rec := fileRec("f1", "notes.txt", time.Now().UTC())
	require.NoError(t, ledger.Upsert(ctx, rec))

	got, err := ledger.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", got.FileName)
	assert.Equal(t, files.StatusPending, got.ProcessingStatus)

	rec.ProcessingStatus = files.StatusComplete
	require.NoError(t, ledger.Upsert(ctx, rec))

	got, err = ledger.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, files.StatusComplete, got.ProcessingStatus)

	all, err := ledger.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedgerGetMissing(t *testing.T) {
	ledger, err := files.NewLedger(t.TempDir(), logging.NewNop())
	require.NoError(t, err)

	_, err = ledger.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, files.ErrFileNotFound)
}

func TestLedgerDeleteIdempotent(t *testing.T) {
	ledger, err := files.NewLedger(t.TempDir(), logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ledger.Upsert(ctx, fileRec("f1", "a.txt", time.Now())))

	removed, err := ledger.Delete(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = ledger.Delete(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLedgerListNewestFirst(t *testing.T) {
	ledger, err := files.NewLedger(t.TempDir(), logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, ledger.Upsert(ctx, fileRec("old", "old.txt", now.Add(-time.Hour))))
	require.NoError(t, ledger.Upsert(ctx, fileRec("new", "new.txt", now)))

	all, err := ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[1].ID)
}

func TestLedgerGetByNameNewest(t *testing.T) {
	ledger, err := files.NewLedger(t.TempDir(), logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, ledger.Upsert(ctx, fileRec("v1", "notes.txt", now.Add(-time.Hour))))
	require.NoError(t, ledger.Upsert(ctx, fileRec("v2", "notes.txt", now)))

	got, err := ledger.GetByName(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.ID)

	_, err = ledger.GetByName(ctx, "missing.txt")
	assert.ErrorIs(t, err, files.ErrFileNotFound)
}

func TestLedgerCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	tl := logging.NewTestLogger()
	ledger, err := files.NewLedger(dir, tl.Logger)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "file_metadata.json"), []byte("{broken"), 0o644))

	all, err := ledger.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	tl.AssertLogged(t, zapcore.WarnLevel, "unparseable")

	// Writes still work afterwards.
	require.NoError(t, ledger.Upsert(ctx, fileRec("f1", "a.txt", time.Now())))
	all, err = ledger.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedgerUpsertValidation(t *testing.T) {
	ledger, err := files.NewLedger(t.TempDir(), logging.NewNop())
	require.NoError(t, err)

	err = ledger.Upsert(context.Background(), &files.FileRecord{ID: "f1"})
	assert.ErrorIs(t, err, files.ErrInvalidFile)
}
