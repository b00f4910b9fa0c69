package classify

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Species is one catalog entry.
type Species struct {
	Name           string `yaml:"name" json:"name"`
	ScientificName string `yaml:"scientific_name" json:"scientific_name,omitempty"`
	Description    string `yaml:"description" json:"description"`
}

// Description is what presenters show next to a result. Known is false
// when the catalog has no text for the species and Text is the fallback.
type Description struct {
	Species        string `json:"species"`
	ScientificName string `json:"scientific_name,omitempty"`
	Text           string `json:"text"`
	Known          bool   `json:"known"`
}

// FallbackDescription is the text for species without a catalog entry.
func FallbackDescription(name string) string {
	return fmt.Sprintf("No description is available for %s yet.", name)
}

// catalogFile is the on-disk YAML layout.
type catalogFile struct {
	Species []Species `yaml:"species"`
}

// Catalog maps species names to descriptive text.
// Lookups are case-insensitive.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Species
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c := &Catalog{entries: make(map[string]Species)}
	c.put(Species{
		Name:           AfricanBushElephant,
		ScientificName: "Loxodonta africana",
		Description: "The African bush elephant is the largest living terrestrial animal and the largest of " +
			"the three extant elephant species. Adults typically weigh 4-7 tons and can reach heights of up " +
			"to 4 meters. They are characterized by their large ears, wrinkled gray skin, and long tusks. " +
			"These magnificent creatures play a crucial role in their ecosystem as keystone species, helping " +
			"to maintain the biodiversity of African savannas through their feeding and movement patterns.",
	})
	return c
}

// ParseCatalog reads YAML entries on top of the built-in catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("classify: parse catalog: %w", err)
	}

	c := DefaultCatalog()
	for i, s := range f.Species {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("classify: catalog entry %d has no name", i)
		}
		c.put(s)
	}
	return c, nil
}

// LoadCatalog reads a YAML catalog file. An empty path yields the built-in
// catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classify: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func (c *Catalog) put(s Species) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[strings.ToLower(strings.TrimSpace(s.Name))] = s
}

// Lookup returns the entry for name.
func (c *Catalog) Lookup(name string) (Species, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Describe never fails: species without text get the fallback.
func (c *Catalog) Describe(name string) Description {
	if s, ok := c.Lookup(name); ok && s.Description != "" {
		return Description{
			Species:        s.Name,
			ScientificName: s.ScientificName,
			Text:           s.Description,
			Known:          true,
		}
	}
	if canonical, ok := CanonicalLabel(SpeciesLabels, name); ok {
		name = canonical
	}
	return Description{
		Species: name,
		Text:    FallbackDescription(name),
	}
}

// List describes every classifiable species followed by any extra catalog
// entries, sorted by name.
func (c *Catalog) List() []Description {
	out := make([]Description, 0, len(SpeciesLabels))
	seen := make(map[string]bool)
	for _, name := range SpeciesLabels {
		out = append(out, c.Describe(name))
		seen[strings.ToLower(name)] = true
	}

	c.mu.RLock()
	var extra []string
	for key, s := range c.entries {
		if !seen[key] {
			extra = append(extra, s.Name)
		}
	}
	c.mu.RUnlock()

	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, c.Describe(name))
	}
	return out
}
