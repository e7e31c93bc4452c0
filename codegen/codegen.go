// Package codegen implements the static-analysis client generator spec.md
// §4.8 describes: walk a Go source tree for //zap:export functions and
// //zap:type structs, build a closed type-lattice model of them, and emit
// a TypeScript types file plus flat and namespaced client surfaces.
package codegen

import (
	"fmt"
	"os"
	"path/filepath"
)

// Options configures one generation run, mirroring the --project-dir/
// --output-dir flags spec.md §6 gives the code generator CLI.
type Options struct {
	ProjectDir string
	OutputDir  string
}

func (o *Options) setDefaults() {
	if o.ProjectDir == "" {
		o.ProjectDir = "."
	}
	if o.OutputDir == "" {
		o.OutputDir = "./src/api"
	}
}

// Generate walks opts.ProjectDir, builds the type/function model, and
// writes types.ts, flat.ts, and namespaced.ts under opts.OutputDir.
func Generate(opts Options) error {
	opts.setDefaults()

	model, err := Walk(opts.ProjectDir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("codegen: create output dir: %w", err)
	}

	files := map[string]func(*Model) (string, error){
		"types.ts":      EmitTypes,
		"flat.ts":       EmitFlat,
		"namespaced.ts": EmitNamespaced,
	}

	for name, emit := range files {
		content, err := emit(model)
		if err != nil {
			return fmt.Errorf("codegen: render %s: %w", name, err)
		}
		path := filepath.Join(opts.OutputDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("codegen: write %s: %w", path, err)
		}
	}
	return nil
}
