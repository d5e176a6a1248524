package config

// Version is the current Arc version.
// Set at build time via -ldflags or by writing to this file.
var Version = "0.3.0"

const SourceFileExt = ".arc"

// SourceFileExtensions are all recognized source file extensions.
var SourceFileExtensions = []string{".arc"}

// TrimSourceExt removes any recognized source extension from a filename.
// Returns the original string if no extension matches.
func TrimSourceExt(name string) string {
	for _, ext := range SourceFileExtensions {
		if len(name) >= len(ext) && name[len(name)-len(ext):] == ext {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// HasSourceExt returns true if the path ends with any recognized source extension.
func HasSourceExt(path string) bool {
	for _, ext := range SourceFileExtensions {
		if len(path) >= len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}

// Environment variable names recognized by the runtime configuration
// loader (internal/runtimecfg).
const (
	EnvSecurityLevel = "ARC_SECURITY_LEVEL"
	EnvMaxSteps      = "ARC_MAX_STEPS"
	EnvExecTimeout   = "ARC_EXEC_TIMEOUT_SECONDS"
	EnvCapabilities  = "ARC_CAPABILITIES"
	EnvTrustStore    = "ARC_TRUST_STORE"
)

// Built-in intrinsic names referenced outside the registry itself.
const (
	PrintFuncName = "print"
	LenFuncName   = "len"
	TypeFuncName  = "type"
	StrFuncName   = "str"
	ImportName    = "sys.import"
)
