package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circuit/internal/store"
	"github.com/roach88/circuit/internal/testutil"
)

func runJSON(t *testing.T, args ...string) RunSummary {
	t.Helper()
	out, err := execute(t, append([]string{"run", "--format", "json"}, args...)...)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestRunTicksPersistsEventsAndProgress(t *testing.T) {
	dbPath := seedSlot(t, "workshop")

	summary := runJSON(t, "--db", dbPath, "--slot", "workshop", "--ticks", "5")
	assert.Equal(t, "workshop", summary.Slot)
	assert.Equal(t, 5, summary.Ticks)
	assert.Equal(t, int64(5), summary.Tick)
	assert.Equal(t, 1, summary.Events, "lamp publishes once, then repeats are suppressed")
	assert.NotEmpty(t, summary.Machine)

	info := slotInfo(t, dbPath, "workshop")
	assert.Equal(t, int64(5), info.Tick)
	assert.Equal(t, 1, info.Events)

	// A second run resumes the clock and the late-join cache.
	summary = runJSON(t, "--db", dbPath, "--slot", "workshop", "--ticks", "3")
	assert.Equal(t, int64(8), summary.Tick)
	assert.Equal(t, 0, summary.Events)
	assert.Equal(t, int64(8), slotInfo(t, dbPath, "workshop").Tick)
}

func TestRunUsesInjectedIDGenerator(t *testing.T) {
	dbPath := seedSlot(t, "workshop")

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		IDGenerator: testutil.NewFixedIDGenerator("machine-1"),
	}
	out, err := executeCmd(t, newRunCommand(opts), "--db", dbPath, "--slot", "workshop", "--ticks", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"machine": "machine-1"`)
}

func TestRunMissingSlotFlag(t *testing.T) {
	_, err := execute(t, "run", "--db", filepath.Join(t.TempDir(), "c.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "slot")
}

func TestRunUnknownSlot(t *testing.T) {
	dbPath := seedSlot(t, "workshop")

	_, err := execute(t, "run", "--db", dbPath, "--slot", "ghost", "--ticks", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestRunRejectsNegativeTicks(t *testing.T) {
	_, err := execute(t, "run", "--slot", "workshop", "--ticks", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunBadConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "circuit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("tick_rate: 60\n"), 0o644))

	_, err := execute(t, "run", "--config", cfgPath, "--slot", "workshop", "--ticks", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRunConfigFileSuppliesDatabase(t *testing.T) {
	dbPath := seedSlot(t, "workshop")
	cfgPath := filepath.Join(t.TempDir(), "circuit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("db_path: "+dbPath+"\nbase_dt: 0.5\n"), 0o644))

	summary := runJSON(t, "--config", cfgPath, "--slot", "workshop", "--ticks", "4")
	assert.Equal(t, int64(4), summary.Tick)
	assert.InDelta(t, 2.0, summary.Elapsed, 1e-9)
}

func TestRunUntilCancelled(t *testing.T) {
	dbPath := seedSlot(t, "workshop")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	cmd := NewRootCommand()
	cmd.SetContext(ctx)
	out, err := executeCmd(t, cmd, "run", "--db", dbPath, "--slot", "workshop", "--listen", "")
	require.NoError(t, err)
	assert.Contains(t, out, "of slot workshop")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	info, err := st.Slot(context.Background(), "workshop")
	require.NoError(t, err)
	assert.Positive(t, info.Tick)
}
