package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Duplicate Resolution]
Ran At: {{.RanAt}}
Records Scanned: {{.Scanned}}
Duplicate Groups: {{.Groups}}
Records Deleted: {{.Deleted}}
{{ if .Errors }}
Errors:
{{ range .Errors }}- {{ . }}
{{ end }}{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	RanAt   string
	Scanned int
	Groups  int
	Deleted int
	Errors  []string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("resolution-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("resolution template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
