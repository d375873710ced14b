package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestStore_PassesAndCaptures(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "journal.db"))
	_, err := uuid.Parse(s.RunID())
	require.NoError(t, err)

	culm := time.Date(2026, 10, 19, 21, 4, 5, 0, time.UTC)
	require.NoError(t, s.RecordPass(ctx, PassRecord{
		Name: "ISS (ZARYA)", CatalogID: "25544", Culmination: culm,
		State: "done", PanRotationDeg: -120.5, TiltRotationDeg: 33.25,
		RecordedAt: culm.Add(time.Minute),
	}))
	require.NoError(t, s.RecordPass(ctx, PassRecord{
		Name: "NOAA 19", CatalogID: "33591", Culmination: culm.Add(time.Hour),
		State: "skipped", Reason: "unreachable",
	}))
	require.NoError(t, s.RecordCapture(ctx, CaptureRecord{Target: "ISS (ZARYA)", Index: -2, At: culm.Add(-20 * time.Second), File: "DSC_0001.JPG"}))
	require.NoError(t, s.RecordCapture(ctx, CaptureRecord{Target: "ISS (ZARYA)", Index: -1, At: culm.Add(-10 * time.Second), Error: "camera unavailable"}))

	passes, err := s.ListPasses(ctx, s.RunID())
	require.NoError(t, err)
	require.Len(t, passes, 2)
	assert.Equal(t, PassRecord{
		RunID: s.RunID(), Name: "ISS (ZARYA)", CatalogID: "25544", Culmination: culm,
		State: "done", PanRotationDeg: -120.5, TiltRotationDeg: 33.25,
		RecordedAt: culm.Add(time.Minute),
	}, passes[0])
	assert.Equal(t, "unreachable", passes[1].Reason)

	captures, err := s.ListCaptures(ctx, s.RunID())
	require.NoError(t, err)
	require.Len(t, captures, 2)
	assert.Equal(t, -2, captures[0].Index)
	assert.Equal(t, "DSC_0001.JPG", captures[0].File)
	assert.Equal(t, "camera unavailable", captures[1].Error)
}

func TestStore_RunsAreSeparate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	first := openTestStore(t, path)
	require.NoError(t, first.RecordPass(ctx, PassRecord{Name: "A", State: "done", Culmination: time.Now()}))
	require.NoError(t, first.Close())

	second := openTestStore(t, path)
	assert.NotEqual(t, first.RunID(), second.RunID())
	passes, err := second.ListPasses(ctx, second.RunID())
	require.NoError(t, err)
	assert.Empty(t, passes)

	passes, err = second.ListPasses(ctx, first.RunID())
	require.NoError(t, err)
	assert.Len(t, passes, 1)
}
