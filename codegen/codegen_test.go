package codegen_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zapsplice/zap/codegen"
)

const sampleSource = `package sample

import "github.com/zapsplice/zap/registry"

// AddRequest is the payload for the add function.
//zap:type
type AddRequest struct {
	A int64 ` + "`msgp:\"a\"`" + `
	B int64 ` + "`msgp:\"b\"`" + `
	Label *string
}

// Add returns the sum of A and B.
//zap:export
//zap:namespace=math
func Add(ctx *registry.Context, req AddRequest) (int64, error) {
	return req.A + req.B, nil
}

// SlowFunction sleeps then returns, used to exercise cancellation.
//zap:export
//zap:async
func SlowFunction(ctx *registry.Context, millis int64) (string, error) {
	return "done", nil
}
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sample.go"), []byte(sampleSource), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return dir
}

func TestWalkCollectsExportsAndTypes(t *testing.T) {
	dir := writeSample(t)
	model, err := codegen.Walk(dir)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(model.Structs) != 1 {
		t.Fatalf("expected 1 struct, got %d", len(model.Structs))
	}
	if model.Structs[0].Name != "AddRequest" {
		t.Fatalf("unexpected struct name: %s", model.Structs[0].Name)
	}
	if len(model.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(model.Functions))
	}
}

func TestWalkElidesContextParameter(t *testing.T) {
	dir := writeSample(t)
	model, err := codegen.Walk(dir)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	for _, fn := range model.Functions {
		if fn.Name != "Add" {
			continue
		}
		if len(fn.Params) != 1 || fn.Params[0].Name != "req" {
			t.Fatalf("expected Add to surface only 'req', got %+v", fn.Params)
		}
	}
}

func TestWalkDetectsNamespaceAndAsync(t *testing.T) {
	dir := writeSample(t)
	model, err := codegen.Walk(dir)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	var add, slow *codegen.FunctionMeta
	for i := range model.Functions {
		switch model.Functions[i].Name {
		case "Add":
			add = &model.Functions[i]
		case "SlowFunction":
			slow = &model.Functions[i]
		}
	}
	if add == nil || add.Namespace != "math" {
		t.Fatalf("expected Add in namespace math, got %+v", add)
	}
	if add.WireName() != "math.Add" {
		t.Fatalf("unexpected wire name: %s", add.WireName())
	}
	if slow == nil || !slow.Async {
		t.Fatalf("expected SlowFunction to be async, got %+v", slow)
	}
}

func TestStructFieldsHaveRenameAndOptional(t *testing.T) {
	dir := writeSample(t)
	model, err := codegen.Walk(dir)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	st := model.Structs[0]
	byName := map[string]codegen.Field{}
	for _, f := range st.Fields {
		byName[f.SourceName] = f
	}
	if byName["A"].ClientName() != "a" {
		t.Fatalf("expected field A renamed to 'a', got %q", byName["A"].ClientName())
	}
	if !byName["Label"].Optional {
		t.Fatalf("expected Label to be optional (pointer field)")
	}
}

func TestEmitTypesProducesInterface(t *testing.T) {
	dir := writeSample(t)
	model, err := codegen.Walk(dir)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	out, err := codegen.EmitTypes(model)
	if err != nil {
		t.Fatalf("EmitTypes: %v", err)
	}
	if !strings.Contains(out, "export interface AddRequest") {
		t.Fatalf("expected AddRequest interface, got:\n%s", out)
	}
	if !strings.Contains(out, "a: number;") {
		t.Fatalf("expected renamed field 'a', got:\n%s", out)
	}
	if !strings.Contains(out, "Label?: string | null;") {
		t.Fatalf("expected optional Label field, got:\n%s", out)
	}
}

func TestEmitFlatAndNamespaced(t *testing.T) {
	dir := writeSample(t)
	model, err := codegen.Walk(dir)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	flat, err := codegen.EmitFlat(model)
	if err != nil {
		t.Fatalf("EmitFlat: %v", err)
	}
	if !strings.Contains(flat, `call("Add",`) {
		t.Fatalf("expected flat client to call wire name Add, got:\n%s", flat)
	}

	namespaced, err := codegen.EmitNamespaced(model)
	if err != nil {
		t.Fatalf("EmitNamespaced: %v", err)
	}
	if !strings.Contains(namespaced, "export const math = {") {
		t.Fatalf("expected a math namespace export, got:\n%s", namespaced)
	}
}

func TestGenerateWritesAllThreeFiles(t *testing.T) {
	dir := writeSample(t)
	outDir := filepath.Join(t.TempDir(), "out")
	if err := codegen.Generate(codegen.Options{ProjectDir: dir, OutputDir: outDir}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, name := range []string{"types.ts", "flat.ts", "namespaced.ts"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("expected %s to be written: %v", name, err)
		}
	}
}
