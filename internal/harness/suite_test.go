package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", filepath.Join("nested", "c.yaml")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := Discover([]string{dir, filepath.Join(dir, "b.yaml")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(nested, "c.yaml"),
	}, files)
}

func TestDiscover_MissingPath(t *testing.T) {
	_, err := Discover([]string{filepath.Join(t.TempDir(), "gone.yaml")})
	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, nf.Error(), "gone.yaml")
}

func TestRunSuite_Testdata(t *testing.T) {
	result, err := RunSuite([]string{filepath.Join("testdata", "scenarios")})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed, "failures: %+v", result.Failures)
	assert.True(t, result.Pass())
}

func TestRunSuite_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`
name: wrong
description: "constant is not 5"
blocks:
  - {id: k, type: constant}
steps:
  - ticks: 1
    expect:
      outputs: {k.out: 5}
`), 0o644))

	result, err := RunSuite([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 0, result.Passed)
	assert.False(t, result.Pass())
	require.Len(t, result.Failures, 2)
	assert.Equal(t, filepath.Join(dir, "broken.yaml"), result.Failures[0].Path)
	assert.Contains(t, result.Failures[0].Errors[0], "failed to parse YAML")
	assert.Equal(t, "wrong", result.Failures[1].Name)
}

const constantScenario = `
name: %s
description: "constant holds its default"
blocks:
  - {id: k, type: constant}
steps:
  - ticks: 1
`

func writeScenario(t *testing.T, dir, file, name string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(constantScenario, name)), 0o644))
	return path
}

func TestRunSuite_Filter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "lamp-on.yaml", "lamp-on")
	writeScenario(t, dir, "lamp-off.yaml", "lamp-off")
	writeScenario(t, dir, "timer.yaml", "timer")

	result, err := RunSuite([]string{dir}, WithFilter("lamp-*"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	_, err = RunSuite([]string{dir}, WithFilter("[bad"))
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestRunSuite_GoldenFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "hold.yaml", "hold")

	// No golden file yet: assertions alone decide.
	result, err := RunSuite([]string{dir}, WithGoldenFiles(false))
	require.NoError(t, err)
	assert.True(t, result.Pass())

	result, err = RunSuite([]string{dir}, WithGoldenFiles(true))
	require.NoError(t, err)
	assert.True(t, result.Pass())
	require.FileExists(t, GoldenFilePath(path))

	result, err = RunSuite([]string{dir}, WithGoldenFiles(false))
	require.NoError(t, err)
	assert.True(t, result.Pass(), "failures: %+v", result.Failures)

	require.NoError(t, os.WriteFile(GoldenFilePath(path), []byte(`{"trace":[]}`), 0o644))
	result, err = RunSuite([]string{dir}, WithGoldenFiles(false))
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Errors[0], "trace does not match")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "x.golden"), GoldenFilePath(filepath.Join("s", "x.yaml")))
}
