package codegen

import (
	"strings"
	"text/template"
)

const flatTemplate = `// Code generated by zap-codegen. DO NOT EDIT.

import type * as types from "./types";
import { call } from "./runtime";

{{range .Functions -}}
{{if .Doc}}/**
{{range (splitLines .Doc)}} * {{.}}
{{end -}}
 */
{{end -}}
export {{if .Async}}async {{end}}function {{.ClientName}}({{range $i, $p := .Params}}{{if $i}}, {{end}}{{$p.Name}}: {{tsType $p.Type}}{{end}}): {{if .Async}}Promise<{{tsType .Return}}>{{else}}{{tsType .Return}}{{end}} {
  return call("{{.Name}}", { {{range $i, $p := .Params}}{{if $i}}, {{end}}{{$p.Name}}{{end}} });
}

{{end -}}
`

var flatTmpl = template.Must(template.New("flat").Funcs(typesFuncs).Parse(flatTemplate))

// EmitFlat renders one callable per exported function, named via
// snake_case-to-camelCase translation, wrapping an RPC call keyed by the
// function's original source name (spec.md §4.8's "flat client file").
func EmitFlat(model *Model) (string, error) {
	var sb strings.Builder
	if err := flatTmpl.Execute(&sb, model); err != nil {
		return "", err
	}
	return sb.String(), nil
}
