// Package runtimecfg loads the embedder-facing VM configuration (spec
// §6.2/§6.4) from a YAML file with environment-variable overrides, the
// posture the spec asks for: the core only requires the record at VM
// construction; where it comes from is the host's business.
package runtimecfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arclang/arc/internal/config"
	"github.com/arclang/arc/internal/vm"
)

// File is the YAML shape of an Arc runtime configuration.
type File struct {
	SecurityLevel string   `yaml:"security_level"`
	Capabilities  []string `yaml:"capabilities"`
	TrustedHashes []string `yaml:"trusted_hashes"`
	Lenient       bool     `yaml:"lenient_truthiness"`
	Limits        struct {
		MaxStackDepth  int   `yaml:"max_stack_depth"`
		MaxSteps       int64 `yaml:"max_steps"`
		MaxMemoryMB    int   `yaml:"max_memory_mb"`
		MaxExecSeconds int   `yaml:"max_exec_seconds"`
	} `yaml:"limits"`
}

// Default returns the spec-default configuration: unrestricted, no
// capabilities, default limits.
func Default() vm.Config {
	return vm.Config{Limits: vm.DefaultLimits()}
}

// Load reads path (when non-empty), then applies environment overrides.
func Load(path string) (vm.Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		var f File
		if err := yaml.Unmarshal(data, &f); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		if err := applyFile(&cfg, &f); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFile(cfg *vm.Config, f *File) error {
	if f.SecurityLevel != "" {
		lvl, err := ParseSecurityLevel(f.SecurityLevel)
		if err != nil {
			return err
		}
		cfg.Security = lvl
	}
	for _, c := range f.Capabilities {
		cap, err := ParseCapability(c)
		if err != nil {
			return err
		}
		cfg.Capabilities = append(cfg.Capabilities, cap)
	}
	if len(f.TrustedHashes) > 0 {
		cfg.TrustedHashes = make(map[string]bool, len(f.TrustedHashes))
		for _, h := range f.TrustedHashes {
			cfg.TrustedHashes[strings.ToLower(h)] = true
		}
	}
	cfg.LenientTruthiness = f.Lenient
	if f.Limits.MaxStackDepth > 0 {
		cfg.Limits.MaxStackDepth = f.Limits.MaxStackDepth
	}
	if f.Limits.MaxSteps > 0 {
		cfg.Limits.MaxSteps = f.Limits.MaxSteps
	}
	if f.Limits.MaxMemoryMB > 0 {
		cfg.Limits.MaxMemoryMB = f.Limits.MaxMemoryMB
	}
	if f.Limits.MaxExecSeconds > 0 {
		cfg.Limits.ExecTimeout = time.Duration(f.Limits.MaxExecSeconds) * time.Second
	}
	return nil
}

func applyEnv(cfg *vm.Config) error {
	if v := os.Getenv(config.EnvSecurityLevel); v != "" {
		lvl, err := ParseSecurityLevel(v)
		if err != nil {
			return err
		}
		cfg.Security = lvl
	}
	if v := os.Getenv(config.EnvMaxSteps); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", config.EnvMaxSteps, err)
		}
		cfg.Limits.MaxSteps = n
	}
	if v := os.Getenv(config.EnvExecTimeout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", config.EnvExecTimeout, err)
		}
		cfg.Limits.ExecTimeout = time.Duration(n) * time.Second
	}
	if v := os.Getenv(config.EnvCapabilities); v != "" {
		cfg.Capabilities = nil
		for _, c := range strings.Split(v, ",") {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			cap, err := ParseCapability(c)
			if err != nil {
				return err
			}
			cfg.Capabilities = append(cfg.Capabilities, cap)
		}
	}
	return nil
}

// ParseSecurityLevel accepts the spec's level names, case-insensitively.
func ParseSecurityLevel(s string) (vm.SecurityLevel, error) {
	switch strings.ToLower(s) {
	case "unrestricted":
		return vm.SecurityUnrestricted, nil
	case "trustedonly", "trusted_only", "trusted":
		return vm.SecurityTrustedOnly, nil
	case "sandboxed", "sandbox":
		return vm.SecuritySandboxed, nil
	default:
		return 0, fmt.Errorf("unknown security level %q", s)
	}
}

// ParseCapability validates a capability tag.
func ParseCapability(s string) (vm.Capability, error) {
	switch vm.Capability(strings.ToLower(s)) {
	case vm.CapNet:
		return vm.CapNet, nil
	case vm.CapFSRead:
		return vm.CapFSRead, nil
	case vm.CapFSWrite:
		return vm.CapFSWrite, nil
	case vm.CapAI:
		return vm.CapAI, nil
	case vm.CapExec:
		return vm.CapExec, nil
	default:
		return "", fmt.Errorf("unknown capability %q", s)
	}
}
