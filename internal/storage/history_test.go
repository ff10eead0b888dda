package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/table-extractor/internal/domain"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(context.Background(), Options{
		Driver:     DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "nested", "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func record(name string, started time.Time, status domain.ExtractionStatus) domain.ExtractionRecord {
	return domain.ExtractionRecord{
		ID:          uuid.New(),
		ImageName:   name,
		Model:       "gpt-4o-mini",
		Location:    "/tmp/" + name + "/results.csv",
		Columns:     []string{"Name", "Age"},
		RowCount:    3,
		ColumnCount: 2,
		Status:      status,
		Stage:       domain.StageDone,
		StartedAt:   started,
		FinishedAt:  started.Add(2 * time.Second),
	}
}

func TestHistory_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	h := openTestHistory(t)

	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := record("scan.png", started, domain.StatusDone)
	require.NoError(t, h.Record(ctx, rec))

	got, err := h.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "scan.png", got.ImageName)
	assert.Equal(t, []string{"Name", "Age"}, got.Columns)
	assert.Equal(t, domain.StatusDone, got.Status)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 2*time.Second, got.FinishedAt.Sub(got.StartedAt))
}

func TestHistory_GetMissing(t *testing.T) {
	_, err := openTestHistory(t).Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistory_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := openTestHistory(t)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.png", "b.png", "c.png"} {
		require.NoError(t, h.Record(ctx, record(name, base.Add(time.Duration(i)*time.Minute), domain.StatusDone)))
	}

	failed := record("d.png", base.Add(time.Hour), domain.StatusFailed)
	failed.Stage = domain.StageDecoded
	failed.Reason = "no rows parsed"
	failed.Columns = nil
	require.NoError(t, h.Record(ctx, failed))

	got, err := h.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "d.png", got[0].ImageName)
	assert.Equal(t, domain.StatusFailed, got[0].Status)
	assert.Equal(t, domain.StageDecoded, got[0].Stage)
	assert.Equal(t, "no rows parsed", got[0].Reason)
	assert.Empty(t, got[0].Columns)
	assert.Equal(t, "c.png", got[1].ImageName)
	assert.Equal(t, "b.png", got[2].ImageName)

	all, err := h.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestHistory_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	h, err := Open(ctx, Options{SQLitePath: path})
	require.NoError(t, err)
	rec := record("a.png", time.Now(), domain.StatusDone)
	require.NoError(t, h.Record(ctx, rec))
	require.NoError(t, h.Close())

	h, err = Open(ctx, Options{SQLitePath: path})
	require.NoError(t, err)
	defer h.Close()

	got, err := h.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
}

func TestOpen_InvalidOptions(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Options{Driver: "mysql"})
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))

	_, err = Open(ctx, Options{Driver: DriverSQLite})
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))

	_, err = Open(ctx, Options{Driver: DriverPostgres})
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}
