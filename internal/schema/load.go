package schema

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// document is the on-disk layout. Entities are decoded from a mapping node so
// their declaration order survives; gate evaluation depends on it.
type document struct {
	SystemPrompt string               `yaml:"system_prompt"`
	Description  string               `yaml:"description"`
	Entities     yaml.Node            `yaml:"entities"`
	Globals      map[string]*FieldDef `yaml:"global_placeholders"`
	Rules        []*GenerationRule    `yaml:"generation_rules"`
}

// Load reads a YAML or JSON schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}
	s, err := Parse(data)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}
	return s, nil
}

// Parse decodes a YAML or JSON schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &s, nil
}

// UnmarshalYAML decodes the document layout into a Schema.
func (s *Schema) UnmarshalYAML(value *yaml.Node) error {
	var doc document
	if err := value.Decode(&doc); err != nil {
		return err
	}

	out := Schema{
		SystemPrompt: doc.SystemPrompt,
		Description:  doc.Description,
		Globals:      doc.Globals,
		Rules:        doc.Rules,
	}
	if out.Globals == nil {
		out.Globals = map[string]*FieldDef{}
	}

	err := eachMapEntry(&doc.Entities, func(name string, node *yaml.Node) error {
		var e Entity
		if err := node.Decode(&e); err != nil {
			return fmt.Errorf("entity %s: %w", name, err)
		}
		e.Name = name
		if e.Fields == nil {
			e.Fields = map[string]*FieldDef{}
		}
		out.Entities = append(out.Entities, &e)
		return nil
	})
	if err != nil {
		return err
	}

	*s = out
	return nil
}

// UnmarshalYAML accepts either a scalar prompt or a sub-field mapping.
func (p *Prompt) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*p = Prompt{Text: value.Value}
		return nil
	case yaml.MappingNode:
		var parts map[string]string
		if err := value.Decode(&parts); err != nil {
			return err
		}
		*p = Prompt{Parts: parts}
		return nil
	}
	return fmt.Errorf("line %d: ask must be a string or a mapping", value.Line)
}

// MarshalYAML mirrors UnmarshalYAML.
func (p Prompt) MarshalYAML() (any, error) {
	if len(p.Parts) > 0 {
		return p.Parts, nil
	}
	return p.Text, nil
}

// eachMapEntry visits the entries of a mapping node in document order.
// A zero node (key absent) visits nothing.
func eachMapEntry(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// Marshal renders s in the on-disk YAML layout.
func Marshal(s *Schema) ([]byte, error) {
	entities := yaml.Node{Kind: yaml.MappingNode}
	for _, e := range s.Entities {
		var val yaml.Node
		if err := val.Encode(e); err != nil {
			return nil, err
		}
		entities.Content = append(entities.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Name}, &val)
	}

	out := struct {
		SystemPrompt string               `yaml:"system_prompt,omitempty"`
		Description  string               `yaml:"description,omitempty"`
		Entities     *yaml.Node           `yaml:"entities"`
		Globals      map[string]*FieldDef `yaml:"global_placeholders,omitempty"`
		Rules        []*GenerationRule    `yaml:"generation_rules,omitempty"`
	}{s.SystemPrompt, s.Description, &entities, s.Globals, s.Rules}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), enc.Close()
}
