package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// writeCatalog writes src as catalog.cue in a fresh directory.
func writeCatalog(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.cue"), []byte(src), 0o644))
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCmd(t, NewRootCommand(), args...)
}

func executeCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const motorCatalog = `
package catalog

block: motor: {
	input: torque: {
		displayName: "Torque"
		types: number: {
			config: 200
			clamp: {min: 0, max: 1000}
		}
	}
	output: rpm: {
		displayName: "RPM"
		types: number: {}
	}
}

block: lamp: {
	input: on: {
		displayName: "On"
		types: boolean: config: false
	}
}
`

// constantCatalog re-declares a built-in type so it can be registered
// against the built-in constructor.
const constantCatalog = `
package catalog

block: constant: {
	input: value: {
		displayName: "Value"
		types: number: config: 7
	}
	output: out: {
		displayName: "Out"
		types: number: {}
	}
}
`
