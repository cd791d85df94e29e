package messaging

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// Template is a named message body with an optional subject.
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Templates is a read-only registry of message templates per channel.
type Templates struct {
	byChannel map[string]map[string]Template
}

type templatesFile struct {
	WhatsApp map[string]Template `yaml:"whatsapp"`
	Email    map[string]Template `yaml:"email"`
}

// Channel names.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() (*Templates, error) {
	return ParseTemplates(defaultTemplatesYAML)
}

// LoadTemplates reads templates from path and layers them over the built-ins.
// An empty path yields the built-ins.
func LoadTemplates(path string) (*Templates, error) {
	base, err := DefaultTemplates()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message templates: %w", err)
	}
	custom, err := ParseTemplates(data)
	if err != nil {
		return nil, err
	}
	for channel, set := range custom.byChannel {
		for name, tpl := range set {
			base.byChannel[channel][name] = tpl
		}
	}
	return base, nil
}

// ParseTemplates decodes a YAML document with whatsapp and email sections.
func ParseTemplates(data []byte) (*Templates, error) {
	var file templatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse message templates: %w", err)
	}

	t := &Templates{byChannel: map[string]map[string]Template{
		ChannelWhatsApp: {},
		ChannelEmail:    {},
	}}
	for name, tpl := range file.WhatsApp {
		if strings.TrimSpace(tpl.Body) == "" {
			return nil, fmt.Errorf("whatsapp template %q has no body", name)
		}
		t.byChannel[ChannelWhatsApp][name] = tpl
	}
	for name, tpl := range file.Email {
		if strings.TrimSpace(tpl.Body) == "" || strings.TrimSpace(tpl.Subject) == "" {
			return nil, fmt.Errorf("email template %q needs a subject and body", name)
		}
		t.byChannel[ChannelEmail][name] = tpl
	}
	return t, nil
}

// Lookup returns the template registered under name for channel.
func (t *Templates) Lookup(channel, name string) (Template, bool) {
	if t == nil {
		return Template{}, false
	}
	tpl, ok := t.byChannel[channel][name]
	return tpl, ok
}

// Has reports whether name exists for channel.
func (t *Templates) Has(channel, name string) bool {
	_, ok := t.Lookup(channel, name)
	return ok
}

// Render resolves a template and fills its params.
func (t *Templates) Render(channel string, msg TemplateMessage) (Message, error) {
	tpl, ok := t.Lookup(channel, msg.Template)
	if !ok {
		return Message{}, newError(channel, CodeUnknownTemplate, fmt.Sprintf("template %q not found", msg.Template), nil)
	}
	return Message{
		Recipient: msg.Recipient,
		Subject:   Render(tpl.Subject, nil, msg.Params),
		Body:      Render(tpl.Body, nil, msg.Params),
	}, nil
}
