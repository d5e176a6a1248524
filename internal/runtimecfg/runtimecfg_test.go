package runtimecfg_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/config"
	"github.com/arclang/arc/internal/runtimecfg"
	"github.com/arclang/arc/internal/vm"
)

func TestDefaults(t *testing.T) {
	cfg := runtimecfg.Default()
	require.Equal(t, vm.SecurityUnrestricted, cfg.Security)
	require.Equal(t, int64(10_000_000), cfg.Limits.MaxSteps)
	require.Equal(t, 10_000, cfg.Limits.MaxStackDepth)
	require.Equal(t, 256, cfg.Limits.MaxMemoryMB)
	require.Equal(t, 5*time.Second, cfg.Limits.ExecTimeout)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
security_level: sandboxed
capabilities:
  - fs_read
  - net
trusted_hashes:
  - AABBCCDDAABBCCDDAABBCCDDAABBCCDDAABBCCDDAABBCCDDAABBCCDDAABBCCDD
lenient_truthiness: true
limits:
  max_steps: 1234
  max_exec_seconds: 2
  max_stack_depth: 99
  max_memory_mb: 64
`), 0o644))

	cfg, err := runtimecfg.Load(path)
	require.NoError(t, err)
	require.Equal(t, vm.SecuritySandboxed, cfg.Security)
	require.ElementsMatch(t, []vm.Capability{vm.CapFSRead, vm.CapNet}, cfg.Capabilities)
	require.True(t, cfg.TrustedHashes["aabbccddaabbccddaabbccddaabbccddaabbccddaabbccddaabbccddaabbccdd"])
	require.True(t, cfg.LenientTruthiness)
	require.Equal(t, int64(1234), cfg.Limits.MaxSteps)
	require.Equal(t, 2*time.Second, cfg.Limits.ExecTimeout)
	require.Equal(t, 99, cfg.Limits.MaxStackDepth)
	require.Equal(t, 64, cfg.Limits.MaxMemoryMB)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("security_level: unrestricted\nlimits:\n  max_steps: 10\n"), 0o644))

	t.Setenv(config.EnvSecurityLevel, "TrustedOnly")
	t.Setenv(config.EnvMaxSteps, "555")
	t.Setenv(config.EnvExecTimeout, "7")
	t.Setenv(config.EnvCapabilities, "fs_read, fs_write")

	cfg, err := runtimecfg.Load(path)
	require.NoError(t, err)
	require.Equal(t, vm.SecurityTrustedOnly, cfg.Security)
	require.Equal(t, int64(555), cfg.Limits.MaxSteps)
	require.Equal(t, 7*time.Second, cfg.Limits.ExecTimeout)
	require.ElementsMatch(t, []vm.Capability{vm.CapFSRead, vm.CapFSWrite}, cfg.Capabilities)
}

func TestUnknownSecurityLevel(t *testing.T) {
	t.Setenv(config.EnvSecurityLevel, "wide-open")
	_, err := runtimecfg.Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "security level")
}

func TestUnknownCapability(t *testing.T) {
	t.Setenv(config.EnvCapabilities, "teleport")
	_, err := runtimecfg.Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "capability")
}

func TestMissingFileIsAnError(t *testing.T) {
	_, err := runtimecfg.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
