package strategy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a definition's config cannot be decoded
// or fails validation.
var ErrInvalidConfig = errors.New("invalid strategy config")

// Definition is the wire-level description of a strategy: an id plus an
// id-specific config that may itself embed child Definitions.
type Definition struct {
	ID     string          `json:"id"`
	Config json.RawMessage `json:"config,omitempty"`
}

// NewDefinition builds a Definition by JSON-encoding cfg. A nil cfg yields an
// empty config.
func NewDefinition(id string, cfg any) (Definition, error) {
	def := Definition{ID: id}
	if cfg == nil {
		return def, nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Definition{}, fmt.Errorf("encoding config for %s: %w", id, err)
	}
	def.Config = raw
	return def, nil
}

// MustDefinition is like NewDefinition but panics on error. Intended for
// tests and static tables.
func MustDefinition(id string, cfg any) Definition {
	def, err := NewDefinition(id, cfg)
	if err != nil {
		panic(err)
	}
	return def
}

// Decode unmarshals the definition's config into dst. Fields absent from
// the config keep the values already present in dst, so callers preset
// defaults. Unknown fields are rejected.
func (d Definition) Decode(dst any) error {
	if len(bytes.TrimSpace(d.Config)) == 0 || bytes.Equal(bytes.TrimSpace(d.Config), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(d.Config))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w for %s: %v", ErrInvalidConfig, d.ID, err)
	}
	return nil
}

// UnmarshalYAML lets request files describe definitions in YAML; the config
// subtree is re-encoded as JSON.
func (d *Definition) UnmarshalYAML(node *yaml.Node) error {
	var aux struct {
		ID     string `yaml:"id"`
		Config any    `yaml:"config"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	d.ID = aux.ID
	d.Config = nil
	if aux.Config != nil {
		raw, err := json.Marshal(aux.Config)
		if err != nil {
			return fmt.Errorf("re-encoding config for %s: %w", aux.ID, err)
		}
		d.Config = raw
	}
	return nil
}
