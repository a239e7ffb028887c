// Package templates discovers outreach email templates from YAML manifests,
// keeps them in a registry, mirrors them into the database and renders them.
package templates

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template types
const (
	TypeInitialOutreach   = "initial_outreach"
	TypeFollowUp          = "follow_up"
	TypeOfferPresentation = "offer_presentation"
	TypeContractSend      = "contract_send"
)

// Body formats
const (
	FormatText = "text"
	FormatHTML = "html"
)

// Manifest is a parsed template file, e.g. templates/initial-outreach.yaml
type Manifest struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Format      string   `yaml:"format"`
	Subject     string   `yaml:"subject"`
	Body        string   `yaml:"body"`
	Variables   []string `yaml:"variables"`

	// Path is the file the manifest was loaded from.
	Path string `yaml:"-"`
}

// LoadManifest reads and parses a template manifest with strict validation.
// Unknown YAML keys are rejected. Format defaults to text.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template manifest: %w", err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	m.Path = path
	return m, nil
}

// ParseManifest decodes a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject typos such as "subjet"

	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse template manifest: %w", err)
	}

	if m.Format == "" {
		m.Format = FormatText
	}

	if m.Name == "" {
		return nil, fmt.Errorf("template manifest missing required field: name")
	}
	if m.Body == "" {
		return nil, fmt.Errorf("template manifest %s missing required field: body", m.Name)
	}
	switch m.Type {
	case TypeInitialOutreach, TypeFollowUp, TypeOfferPresentation, TypeContractSend:
	default:
		return nil, fmt.Errorf("template manifest %s has unknown type %q", m.Name, m.Type)
	}
	if m.Format != FormatText && m.Format != FormatHTML {
		return nil, fmt.Errorf("template manifest %s has unknown format %q", m.Name, m.Format)
	}

	// Parse once so broken templates fail at load time.
	if _, err := compile(m.Subject, m.Format); err != nil {
		return nil, fmt.Errorf("template %s has invalid subject: %w", m.Name, err)
	}
	if _, err := compile(m.Body, m.Format); err != nil {
		return nil, fmt.Errorf("template %s has invalid body: %w", m.Name, err)
	}

	return &m, nil
}
