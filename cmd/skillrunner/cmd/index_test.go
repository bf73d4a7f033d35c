package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifestYAML = `version: 1
skills:
  weather:
    source: "./weather"
    runtime: native
    description: "weather lookups"
    tools:
      - name: forecast
        description: "fetch a forecast"
        parameters: []
`

// createTestProject writes a minimal skill manifest plus a static-embedder
// config so indexing is fast and deterministic in tests.
func createTestProject(t *testing.T, dir string) {
	t.Helper()

	config := `embeddings:
  provider: static
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".skillrunner.yaml"), []byte(config), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skills.yaml"), []byte(testManifestYAML), 0644))
}

func TestIndexCmd_CreatesDataDirectory(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	dataDir := filepath.Join(testDir, ".skillrunner")
	assert.DirExists(t, dataDir, ".skillrunner directory should be created")
}

func TestIndexCmd_CreatesMetadataDB(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	metadataPath := filepath.Join(testDir, ".skillrunner", "metadata.db")
	assert.FileExists(t, metadataPath, "metadata.db should be created")
}

func TestIndexCmd_CreatesBM25Index(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	bm25Path := filepath.Join(testDir, ".skillrunner", "bm25.bleve")
	assert.DirExists(t, bm25Path, "bm25.bleve index should be created")
}

func TestIndexCmd_CreatesVectorStore(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	vectorPath := filepath.Join(testDir, ".skillrunner", "vectors.hnsw")
	assert.FileExists(t, vectorPath, "vectors.hnsw should be created")
}

func TestIndexCmd_ReportsProgress(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Complete:", "Should report indexing progress")
}

func TestIndexCmd_FailsOnNonExistentPath(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "/nonexistent/path"})

	err := cmd.Execute()

	assert.Error(t, err)
}

func TestIndexCmd_FailsOnMissingManifest(t *testing.T) {
	testDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(testDir, ".skillrunner.yaml"), []byte("embeddings:\n  provider: static\n"), 0644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest not found")
}

func TestIndexCmd_DefaultsToCurrentDirectory(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()

	err = os.Chdir(testDir)
	require.NoError(t, err)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index"})

	err = cmd.Execute()

	require.NoError(t, err)
	dataDir := filepath.Join(testDir, ".skillrunner")
	assert.DirExists(t, dataDir, ".skillrunner directory should be created")
}

func TestIndexCmd_ManifestFlagOverridesDefault(t *testing.T) {
	testDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(testDir, ".skillrunner.yaml"), []byte("embeddings:\n  provider: static\n"), 0644))

	customManifest := filepath.Join(testDir, "custom-skills.yaml")
	require.NoError(t, os.WriteFile(customManifest, []byte(testManifestYAML), 0644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--manifest", customManifest, testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	metadataPath := filepath.Join(testDir, ".skillrunner", "metadata.db")
	assert.FileExists(t, metadataPath)
}

func TestClearIndexData_RemovesIndexFiles(t *testing.T) {
	dataDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "metadata.db"), []byte("test"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "vectors.hnsw"), []byte("test"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "bm25.bleve"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "bm25.bleve", "store"), []byte("test"), 0644))

	err := clearIndexData(dataDir)

	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dataDir, "metadata.db"))
	assert.NoFileExists(t, filepath.Join(dataDir, "vectors.hnsw"))
	assert.NoDirExists(t, filepath.Join(dataDir, "bm25.bleve"))
}

func TestClearIndexData_IgnoresNonExistentFiles(t *testing.T) {
	dataDir := t.TempDir()

	err := clearIndexData(dataDir)

	require.NoError(t, err)
}

func TestIndexCmd_ForceRebuildsIndex(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})
	require.NoError(t, cmd.Execute())

	metadataPath := filepath.Join(testDir, ".skillrunner", "metadata.db")
	require.FileExists(t, metadataPath)

	originalInfo, err := os.Stat(metadataPath)
	require.NoError(t, err)

	cmd = NewRootCmd()
	buf = new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--force", testDir})

	err = cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Cleared existing index data", "Should report clearing index")

	newInfo, err := os.Stat(metadataPath)
	require.NoError(t, err)
	assert.NotEqual(t, originalInfo.ModTime(), newInfo.ModTime(), "Index file should be recreated")
}

func TestIndexCmd_ForcePreservesConfig(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	customConfig := `embeddings:
  provider: static
`
	configPath := filepath.Join(testDir, ".skillrunner.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(customConfig), 0644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})
	require.NoError(t, cmd.Execute())

	cmd = NewRootCmd()
	buf = new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--force", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.FileExists(t, configPath)

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, customConfig, string(content), "Config file should be unchanged")
}
