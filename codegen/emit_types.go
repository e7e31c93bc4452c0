package codegen

import (
	"strings"
	"text/template"
)

const typesTemplate = `// Code generated by zap-codegen. DO NOT EDIT.

{{range .Structs -}}
{{if .Doc}}/**
{{range (splitLines .Doc)}} * {{.}}
{{end -}}
 */
{{end -}}
export interface {{.Name}} {
{{range .Fields -}}
  {{.ClientName}}{{if .Optional}}?{{end}}: {{tsType .Type}};
{{end -}}
}

{{end -}}
`

var typesFuncs = template.FuncMap{
	"tsType":     tsType,
	"splitLines": func(s string) []string { return strings.Split(s, "\n") },
}

var typesTmpl = template.Must(template.New("types").Funcs(typesFuncs).Parse(typesTemplate))

// EmitTypes renders one TypeScript interface per //zap:type struct, in
// source order, the "type file" spec.md §4.8 says every client file
// shares a common import of.
func EmitTypes(model *Model) (string, error) {
	var sb strings.Builder
	if err := typesTmpl.Execute(&sb, model); err != nil {
		return "", err
	}
	return sb.String(), nil
}
