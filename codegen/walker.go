package codegen

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

const (
	exportMarker    = "zap:export"
	namespacePrefix = "zap:namespace="
	typeMarker      = "zap:type"
)

// Walk parses every .go file under dir (recursively, skipping _test.go
// files and directories starting with "_" the way the go tool itself
// does) and collects every //zap:export function and //zap:type struct
// it finds, the way spec.md §4.8 describes the generator's input stage.
func Walk(dir string) (*Model, error) {
	fset := token.NewFileSet()
	model := &Model{}

	files, err := collectGoFiles(dir)
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil, fmt.Errorf("codegen: parse %s: %w", path, err)
		}
		if err := walkFile(f, path, model); err != nil {
			return nil, err
		}
	}
	return model, nil
}

func collectGoFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if path != dir && strings.HasPrefix(base, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		out = append(out, path)
		return nil
	})
	return out, err
}

func walkFile(f *ast.File, path string, model *Model) error {
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv != nil {
				continue // methods are not exportable RPC functions
			}
			doc := d.Doc
			if doc == nil || !hasMarker(doc, exportMarker) {
				continue
			}
			fn, err := buildFunctionMeta(d, doc, path)
			if err != nil {
				return err
			}
			model.Functions = append(model.Functions, fn)

		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				st, ok := ts.Type.(*ast.StructType)
				if !ok {
					continue
				}
				doc := ts.Doc
				if doc == nil {
					doc = d.Doc
				}
				if doc == nil || !hasMarker(doc, typeMarker) {
					continue
				}
				sm, err := buildStructMeta(ts, st, doc, path)
				if err != nil {
					return err
				}
				model.Structs = append(model.Structs, sm)
			}
		}
	}
	return nil
}

func hasMarker(doc *ast.CommentGroup, marker string) bool {
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		if text == marker {
			return true
		}
	}
	return false
}

func namespaceFrom(doc *ast.CommentGroup) string {
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		if strings.HasPrefix(text, namespacePrefix) {
			return strings.TrimPrefix(text, namespacePrefix)
		}
	}
	return ""
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	var lines []string
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		if text == exportMarker || text == typeMarker || text == "zap:async" || strings.HasPrefix(text, namespacePrefix) {
			continue
		}
		lines = append(lines, text)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func buildFunctionMeta(d *ast.FuncDecl, doc *ast.CommentGroup, path string) (FunctionMeta, error) {
	fn := FunctionMeta{
		Name:      d.Name.Name,
		Namespace: namespaceFrom(doc),
		Doc:       docText(doc),
		SrcFile:   path,
	}

	params := d.Type.Params
	if params != nil {
		for i, field := range params.List {
			t := resolveType(field.Type)
			names := field.Names
			if len(names) == 0 {
				names = []*ast.Ident{{Name: fmt.Sprintf("arg%d", i)}}
			}
			if t.Kind == KindContext {
				continue // the context wrapper is never surfaced to the client
			}
			for _, n := range names {
				fn.Params = append(fn.Params, Param{Name: n.Name, Type: t})
			}
		}
	}

	fn.Return = classifyReturn(d.Type.Results)
	fn.Async = hasMarker(doc, "zap:async")
	return fn, nil
}

// classifyReturn inspects the function's result list and derives the
// client-surface return type. A function returning (T, error) is
// sync-fallible; one returning only error is sync-fallible-unit.
// Go's type system alone can't distinguish a sync export from an async
// one the way the original source's function-kind enum does (both
// compile to an ordinary Go function signature), so async-ness is
// instead signaled by a //zap:async marker comment alongside
// //zap:export, read by the caller via hasMarker.
func classifyReturn(results *ast.FieldList) *Type {
	if results == nil || len(results.List) == 0 {
		return &Type{Kind: KindUnit}
	}

	var types []*Type
	for _, field := range results.List {
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			types = append(types, resolveType(field.Type))
		}
	}

	// Trailing `error` result marks a fallible function: R<T, E>.
	if last := types[len(types)-1]; last.Kind == KindNamed && last.Name == "error" {
		if len(types) == 1 {
			return &Type{Kind: KindResult, Elem: &Type{Kind: KindUnit}, Err: &Type{Kind: KindNamed, Name: "string"}}
		}
		return &Type{Kind: KindResult, Elem: types[0], Err: &Type{Kind: KindNamed, Name: "string"}}
	}
	return types[0]
}

func buildStructMeta(ts *ast.TypeSpec, st *ast.StructType, doc *ast.CommentGroup, path string) (StructMeta, error) {
	sm := StructMeta{
		Name:    ts.Name.Name,
		Doc:     docText(doc),
		SrcFile: path,
	}

	for _, field := range st.Fields.List {
		t := resolveType(field.Type)
		optional := t.Kind == KindOption

		rename := ""
		if field.Tag != nil {
			rename = renameFromTag(field.Tag.Value)
		}

		if len(field.Names) == 0 {
			// Embedded field: surfaced under the embedded type's own name.
			name := embeddedName(field.Type)
			sm.Fields = append(sm.Fields, Field{SourceName: name, Type: t, Optional: optional, Rename: rename})
			continue
		}
		for _, n := range field.Names {
			if !n.IsExported() {
				continue
			}
			sm.Fields = append(sm.Fields, Field{SourceName: n.Name, Type: t, Optional: optional, Rename: rename})
		}
	}
	return sm, nil
}

func embeddedName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.StarExpr:
		return embeddedName(e.X)
	case *ast.SelectorExpr:
		return e.Sel.Name
	default:
		return "embedded"
	}
}

// renameFromTag extracts the msgp-style `msgp:"name"` struct tag value,
// reusing the same tag convention already adopted for wire encoding
// (spec.md §4.8: "rename_override is extracted from a serialization
// rename annotation").
func renameFromTag(raw string) string {
	unquoted, err := strconv.Unquote(raw)
	if err != nil {
		return ""
	}
	tag := reflect.StructTag(unquoted)
	value, ok := tag.Lookup("msgp")
	if !ok {
		return ""
	}
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[:idx]
	}
	if value == "" || value == "-" {
		return ""
	}
	return value
}

// resolveType maps an ast.Expr into the closed type lattice. The context
// wrapper type resolves to KindContext, which buildFunctionMeta elides
// when it is the first parameter (spec.md §4.8: "a first parameter whose
// type resolves to the context wrapper type is not surfaced").
func resolveType(expr ast.Expr) *Type {
	switch e := expr.(type) {
	case *ast.Ident:
		return resolveIdent(e.Name)
	case *ast.StarExpr:
		elem := resolveType(e.X)
		if elem.Kind == KindContext {
			// Every real export takes *registry.Context, not
			// registry.Context by value (registry/adapter.go) — a
			// pointer to the context wrapper is still the context
			// wrapper, not an Option<Context>, so it stays elidable by
			// buildFunctionMeta's KindContext check.
			return elem
		}
		return &Type{Kind: KindOption, Elem: elem}
	case *ast.ArrayType:
		elem := resolveType(e.Elt)
		if elem.Kind == KindNamed && elem.Name == "byte" {
			return &Type{Kind: KindBytes}
		}
		return &Type{Kind: KindSlice, Elem: elem}
	case *ast.MapType:
		return &Type{Kind: KindMap, Key: resolveType(e.Key), Value: resolveType(e.Value)}
	case *ast.SelectorExpr:
		name := e.Sel.Name
		if isContextType(e) {
			return &Type{Kind: KindContext, Name: name}
		}
		return &Type{Kind: KindNamed, Name: name}
	case *ast.InterfaceType:
		return &Type{Kind: KindNamed, Name: "any"}
	default:
		return &Type{Kind: KindUnknown, Name: fmt.Sprintf("%T", expr)}
	}
}

// isContextType reports whether a selector expression refers to
// registry.Context, the runtime request-context wrapper every
// SyncCtx/AsyncCtx export takes as its first parameter.
func isContextType(sel *ast.SelectorExpr) bool {
	pkg, ok := sel.X.(*ast.Ident)
	if !ok {
		return false
	}
	return pkg.Name == "registry" && sel.Sel.Name == "Context"
}

func resolveIdent(name string) *Type {
	switch name {
	case "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr":
		return &Type{Kind: KindInt, Name: name}
	case "float32", "float64":
		return &Type{Kind: KindFloat, Name: name}
	case "bool":
		return &Type{Kind: KindBool, Name: name}
	case "string":
		return &Type{Kind: KindString, Name: name}
	case "byte":
		return &Type{Kind: KindNamed, Name: "byte"}
	case "error":
		return &Type{Kind: KindNamed, Name: "error"}
	default:
		return &Type{Kind: KindNamed, Name: name}
	}
}
