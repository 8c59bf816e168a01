// Package definitions reads connection definitions from YAML files so that a
// connector can be started with a known set of connections.
package definitions

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eugenetaranov/sftpconn/internal/connector/sftp"
	"github.com/eugenetaranov/sftpconn/internal/registry"
)

// File is a parsed definitions file.
type File struct {
	Connections []sftp.Config `yaml:"connections"`

	// Path is the file the definitions were read from, if any.
	Path string `yaml:"-"`
}

// ParseFile parses and validates a definitions file.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse definitions %s: %w", path, err)
	}

	f.Path = path
	return f, nil
}

// Parse parses and validates definitions from YAML data. Both a document with
// a top-level `connections` key and a bare list of connections are accepted.
func Parse(data []byte) (*File, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid definitions format: %w", err)
	}

	var f File
	if err := decode(&root, &f); err != nil {
		return nil, fmt.Errorf("invalid definitions format: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func decode(root *yaml.Node, f *File) error {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}

	switch doc.Kind {
	case 0:
		return nil
	case yaml.SequenceNode:
		return doc.Decode(&f.Connections)
	default:
		return doc.Decode(f)
	}
}

// Validate checks every connection and rejects duplicate ids.
func (f *File) Validate() error {
	if len(f.Connections) == 0 {
		return errors.New("no connections defined")
	}

	seen := make(map[int]int, len(f.Connections))
	for i, cfg := range f.Connections {
		if _, err := sftp.NewDefinition(cfg); err != nil {
			return fmt.Errorf("connection %d (%s): %w", i+1, describe(cfg), err)
		}
		if prev, ok := seen[cfg.ID]; ok {
			return fmt.Errorf("connection %d (%s): id %d is already used by connection %d", i+1, describe(cfg), cfg.ID, prev)
		}
		seen[cfg.ID] = i + 1
	}
	return nil
}

// Load registers every connection of f with reg. It stops at the first
// connection that cannot be created; connections created before it stay
// registered.
func (f *File) Load(reg *registry.Registry) (int, error) {
	for i, cfg := range f.Connections {
		if _, err := reg.Create(cfg); err != nil {
			return i, fmt.Errorf("connection %d (%s): %w", i+1, describe(cfg), err)
		}
	}
	return len(f.Connections), nil
}

func describe(cfg sftp.Config) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return fmt.Sprintf("id %d", cfg.ID)
}
