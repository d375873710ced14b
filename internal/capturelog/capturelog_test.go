package capturelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	at := time.Date(2026, 10, 19, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	assert.Equal(t, "20261020.csv", FileName(at), "named after the UTC day")
}

func TestLog_HeaderOnlyOnCreate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 19, 21, 0, 0, 0, time.UTC)

	l, err := Open(dir, now)
	require.NoError(t, err)
	require.NoError(t, l.Record(Entry{File: "DSC_0001.JPG", Target: "ISS (ZARYA)", Time: now.Add(5 * time.Second), Index: -2}))
	require.NoError(t, l.Close())

	l, err = Open(dir, now)
	require.NoError(t, err)
	require.NoError(t, l.Record(Entry{File: "DSC_0002.JPG", Target: "ISS (ZARYA)", Time: now.Add(15 * time.Second), Index: -1}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "20261019.csv"))
	require.NoError(t, err)
	assert.Equal(t, Header+"\n"+
		"DSC_0001.JPG,ISS (ZARYA),21:00:05,-2\n"+
		"DSC_0002.JPG,ISS (ZARYA),21:00:15,-1\n", string(data))
}

func TestLog_Export(t *testing.T) {
	dir := t.TempDir()
	usb := t.TempDir()
	l, err := Open(dir, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, l.Record(Entry{File: "a.jpg", Target: "NOAA 19", Time: time.Now(), Index: 0}))
	require.NoError(t, l.Close())

	require.NoError(t, l.Export(usb))
	exported, err := os.ReadFile(filepath.Join(usb, "20261019.csv"))
	require.NoError(t, err)
	original, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Equal(t, original, exported)

	require.Error(t, l.Export(filepath.Join(usb, "missing", "dir")))
}
