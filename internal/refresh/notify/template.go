package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Tariff {{.EventLabel}}]
Tariff: {{.TariffCode}}
{{- if .From }}
From: {{.From}}{{ end }}
{{- if .To }}
To: {{.To}}{{ end }}
Block: {{.BlockStart}} - {{.BlockEnd}}
{{- if .MinutesRemaining }}
Ends In: {{.MinutesRemaining}} min{{ end }}
At: {{.At}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	TariffCode       string
	Event            string
	EventLabel       string
	From             string
	To               string
	BlockStart       string
	BlockEnd         string
	MinutesRemaining int
	At               string
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
	parsed, err := template.New("tariff-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("tariff template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
