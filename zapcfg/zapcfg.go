// Package zapcfg holds plain configuration structs for the supervisor and
// codegen CLIs. Only cmd/zap-supervisor uses it (SupervisorConfig);
// cmd/zap-codegen builds codegen.Options directly. There is no file-based
// config format: every value here is populated directly from parsed CLI
// flags or the ZAP_SOCKET/NOTIFY_SOCKET environment variables (spec.md §6 scopes
// JSON/file config loading out as an external collaborator).
package zapcfg

import "time"

// SupervisorConfig mirrors cmd/zap-supervisor's flag set.
type SupervisorConfig struct {
	HostSocket     string        // --socket, required
	WorkerPath     string        // --worker, required
	WatchPaths     []string      // --watch, comma-separated, optional
	MaxConcurrency int           // --max-concurrency, default 1024
	Timeout        time.Duration // --timeout, default 30s

	// WorkerSocket is not a flag: it's generated per run and passed to
	// the worker via ZAP_SOCKET.
	WorkerSocket string
}

// DefaultSupervisorConfig returns a SupervisorConfig with spec.md §6's
// documented flag defaults applied; callers overwrite fields from parsed
// flags before passing the config on.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		MaxConcurrency: 1024,
		Timeout:        30 * time.Second,
	}
}

// CodegenConfig mirrors cmd/zap-codegen's flag set.
type CodegenConfig struct {
	ProjectDir string // --project-dir, default "."
	OutputDir  string // --output-dir, default "./src/api"
}

// DefaultCodegenConfig returns a CodegenConfig with spec.md §6's
// documented flag defaults applied.
func DefaultCodegenConfig() CodegenConfig {
	return CodegenConfig{
		ProjectDir: ".",
		OutputDir:  "./src/api",
	}
}
