package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	l := NewLog(10)
	l.Append(Record{ToolID: "git@default/log", Succeeded: true, At: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)})
	l.Append(Record{ToolID: "echo@default/say", Succeeded: false, At: time.Date(2026, 7, 1, 12, 0, 5, 0, time.UTC)})
	require.NoError(t, l.Save(dir))

	loaded, err := Load(dir, 10)
	require.NoError(t, err)
	assert.Equal(t, l.List(), loaded.List())
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	loaded, err := Load(t.TempDir(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestLoad_CorruptFileErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, logFileName), []byte("{not json"), 0644))

	_, err := Load(dir, 10)
	assert.Error(t, err)
}

func TestLoad_AppliesSmallerCap(t *testing.T) {
	dir := t.TempDir()

	l := NewLog(10)
	for i := 0; i < 10; i++ {
		l.Append(Record{ToolID: "echo@default/say", At: time.Date(2026, 7, 1, 12, 0, i, 0, time.UTC)})
	}
	require.NoError(t, l.Save(dir))

	loaded, err := Load(dir, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())
	// The newest records are the ones kept.
	records := loaded.List()
	assert.Equal(t, 9, records[0].At.Second())
}
