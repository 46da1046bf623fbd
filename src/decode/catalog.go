// Package decode turns raw CAN frames into telemetry messages using a
// catalog of byte-aligned linear signals.
package decode

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pecan-telemetry/src/sanitize"
)

// ErrInvalidCatalog is returned when a catalog cannot be parsed or fails
// validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Catalog lists the messages a decoder understands.
type Catalog struct {
	Messages []MessageDef `yaml:"messages"`
}

// MessageDef describes one CAN message.
type MessageDef struct {
	ID      uint32      `yaml:"id"`
	Name    string      `yaml:"name"`
	Signals []SignalDef `yaml:"signals"`
}

// SignalDef describes one byte-aligned signal. The physical value is
// raw*Scale + Offset.
type SignalDef struct {
	Name      string  `yaml:"name"`
	StartByte int     `yaml:"start_byte"`
	Length    int     `yaml:"length"`
	BigEndian bool    `yaml:"big_endian"`
	Signed    bool    `yaml:"signed"`
	Scale     float64 `yaml:"scale"`
	Offset    float64 `yaml:"offset"`
	Unit      string  `yaml:"unit"`
	// Min and Max bound the physical value. Only the simulator uses them.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// DefaultCatalog returns the built-in catalog for the simulated car.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a YAML catalog from path. An empty path returns the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog parses and validates a YAML catalog. A zero scale is read as 1.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: failed to parse catalog: %w", ErrInvalidCatalog, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[uint32]bool, len(c.Messages))
	for i := range c.Messages {
		m := &c.Messages[i]
		if seen[m.ID] {
			return fmt.Errorf("duplicate message id %d", m.ID)
		}
		seen[m.ID] = true
		m.Name = sanitize.Label(m.Name)
		if m.Name == "" {
			return fmt.Errorf("message %d has no name", m.ID)
		}

		names := make(map[string]bool, len(m.Signals))
		for j := range m.Signals {
			s := &m.Signals[j]
			s.Name = sanitize.Label(s.Name)
			s.Unit = sanitize.Label(s.Unit)
			if s.Name == "" {
				return fmt.Errorf("message %s: signal %d has no name", m.Name, j)
			}
			if names[s.Name] {
				return fmt.Errorf("message %s: duplicate signal %s", m.Name, s.Name)
			}
			names[s.Name] = true
			if s.Length == 0 {
				s.Length = 1
			}
			if s.Length < 1 || s.Length > 8 {
				return fmt.Errorf("message %s: signal %s length %d out of range 1-8", m.Name, s.Name, s.Length)
			}
			if s.StartByte < 0 || s.StartByte+s.Length > 64 {
				return fmt.Errorf("message %s: signal %s does not fit in a 64 byte frame", m.Name, s.Name)
			}
			if s.Scale == 0 {
				s.Scale = 1
			}
		}
	}
	return nil
}
