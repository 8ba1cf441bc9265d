package commands_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runway-dev/runway/internal/config"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build the binary once for all tests.
	tmpDir, err := os.MkdirTemp("", "runway-test-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = filepath.Join(tmpDir, "runway")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../../cmd/runway")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("failed to build binary: " + err.Error())
	}

	os.Exit(m.Run())
}

func runRunway(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func TestInit_CreatesProject(t *testing.T) {
	dir := t.TempDir()
	out, err := runRunway(t, dir, "init", dir)
	require.NoError(t, err, out)

	for _, f := range []string{"runway.yaml", "plan.yaml", "holidays.yaml"} {
		_, err := os.Stat(filepath.Join(dir, f))
		require.NoError(t, err, "file %s should exist", f)
	}
	info, err := os.Stat(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	cfg, err := config.Load(filepath.Join(dir, "runway.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "holidays.yaml", cfg.HolidayFile)
	assert.Equal(t, 4000, cfg.Projection.MaxOccurrences)
}

func TestForecast_Table(t *testing.T) {
	dir := t.TempDir()
	_, err := runRunway(t, dir, "init", dir)
	require.NoError(t, err)

	out, err := runRunway(t, dir, "forecast", "--from", "2026-03-02", "--to", "2026-03-29")
	require.NoError(t, err, out)

	assert.Contains(t, out, "DATE")
	assert.Contains(t, out, "2026-03-02")
	// Opening 1000 minus the first weekly 100 expense.
	assert.Contains(t, out, "900.00")
}

func TestForecast_CSV(t *testing.T) {
	dir := t.TempDir()
	_, err := runRunway(t, dir, "init", dir)
	require.NoError(t, err)

	csvPath := filepath.Join(dir, "out.csv")
	out, err := runRunway(t, dir, "forecast",
		"--from", "2026-03-02", "--to", "2026-03-29", "--csv", csvPath)
	require.NoError(t, err, out)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 29) // header plus one row per day

	assert.Equal(t, "date,account_id,expected_balance,actual_balance", lines[0])
	assert.Equal(t, "2026-03-02,current,900.00,", lines[1])
	// Weekly groceries on Mar 2, 9, 16 and 23, plus the one-off car repair
	// on Mar 18. The new-job salary stays off under the default scenario.
	assert.Equal(t, "2026-03-29,current,350.00,", lines[28])
}

func TestForecast_NamedScenario(t *testing.T) {
	dir := t.TempDir()
	_, err := runRunway(t, dir, "init", dir)
	require.NoError(t, err)

	out, err := runRunway(t, dir, "forecast",
		"--from", "2026-03-02", "--to", "2026-03-29", "--scenario", "no-such-scenario")
	require.Error(t, err)
	assert.Contains(t, out, "no-such-scenario")
}

func TestForecast_UnknownAccount(t *testing.T) {
	dir := t.TempDir()
	_, err := runRunway(t, dir, "init", dir)
	require.NoError(t, err)

	out, err := runRunway(t, dir, "forecast",
		"--from", "2026-03-02", "--to", "2026-03-29", "--account", "savings")
	require.Error(t, err)
	assert.Contains(t, out, "savings")
}
