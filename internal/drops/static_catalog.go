package drops

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticCatalog serves a fixed set of drops, typically loaded from a YAML
// file for local runs and tests.
type StaticCatalog struct {
	drops map[string]*Drop
}

type catalogFile struct {
	Drops []Drop `yaml:"drops"`
}

// NewStaticCatalog validates every drop; ids must be unique.
func NewStaticCatalog(list []Drop) (*StaticCatalog, error) {
	c := &StaticCatalog{drops: make(map[string]*Drop, len(list))}
	for i := range list {
		d := list[i]
		if err := ValidateDrop(&d); err != nil {
			return nil, err
		}
		if _, dup := c.drops[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate drop id %q", ErrInvalidDrop, d.ID)
		}
		c.drops[d.ID] = &d
	}
	return c, nil
}

func LoadStaticCatalog(r io.Reader) (*StaticCatalog, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewStaticCatalog(f.Drops)
}

func LoadStaticCatalogFile(path string) (*StaticCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadStaticCatalog(f)
}

func (c *StaticCatalog) GetDrop(_ context.Context, id string) (*Drop, error) {
	d, ok := c.drops[id]
	if !ok {
		return nil, ErrDropNotFound
	}
	return d, nil
}

func (c *StaticCatalog) IDs() []string {
	ids := make([]string, 0, len(c.drops))
	for id := range c.drops {
		ids = append(ids, id)
	}
	return ids
}
