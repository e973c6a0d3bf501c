package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: deposit_smoke
steps:
  - init: vault
    caller: admin-1
    msg:
      default_denom: usei
    expect:
      action: instantiate
  - component: vault
    caller: admin-1
    msg:
      create_vault:
        label: core
        denom: usei
        strategy:
          balanced: {}
    expect:
      action: create_vault
  - component: vault
    caller: alice
    funds: 1000usei
    msg:
      deposit:
        vault_id: 1
        amount:
          denom: usei
          amount: "1000"
    expect:
      action: deposit
`

const failingScenario = `name: wrong_expectation
steps:
  - init: vault
    caller: admin-1
    msg:
      default_denom: usei
    expect:
      action: create_vault
`

func writeScenario(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestTestCommandAllPass(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "deposit_smoke.yaml", passingScenario)

	rootOpts := &RootOptions{Format: "text"}
	out, err := runCommand(NewTestCommand(rootOpts), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS  deposit_smoke")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandReportsFailure(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "deposit_smoke.yaml", passingScenario)
	writeScenario(t, dir, "wrong_expectation.yaml", failingScenario)

	rootOpts := &RootOptions{Format: "text"}
	out, err := runCommand(NewTestCommand(rootOpts), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "PASS  deposit_smoke")
	assert.Contains(t, out, "FAIL  wrong_expectation")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "deposit_smoke.yaml", passingScenario)
	writeScenario(t, dir, "wrong_expectation.yaml", failingScenario)

	rootOpts := &RootOptions{Format: "text"}
	out, err := runCommand(NewTestCommand(rootOpts), dir, "--filter", "deposit_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandEmptyDirectory(t *testing.T) {
	rootOpts := &RootOptions{Format: "text"}
	_, err := runCommand(NewTestCommand(rootOpts), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandMalformedScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\nsteps: []\n")

	rootOpts := &RootOptions{Format: "text"}
	_, err := runCommand(NewTestCommand(rootOpts), dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
