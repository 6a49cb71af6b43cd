package catalog

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"ripple/internal/domain"
)

//go:embed config/*.yaml
var configFiles embed.FS

var providerFiles = []string{"anthropic", "openrouter", "lorem"}

// Catalog maps logical model ids to their provider and metadata. Loaded
// once at startup from embedded YAML and passed explicitly to whoever
// needs routing or pricing.
type Catalog struct {
	entries map[string]*Entry
	ordered []string
	mu      sync.RWMutex
}

// Load reads the embedded provider files into a new catalog.
func Load() (*Catalog, error) {
	c := &Catalog{entries: make(map[string]*Entry)}

	for _, provider := range providerFiles {
		if err := c.loadProviderFile(provider); err != nil {
			return nil, fmt.Errorf("load %s catalog: %w", provider, err)
		}
	}

	return c, nil
}

func (c *Catalog) loadProviderFile(provider string) error {
	filename := fmt.Sprintf("config/%s.yaml", provider)
	data, err := configFiles.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}

	var file providerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("unmarshal %s: %w", filename, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range file.Models {
		entry := file.Models[i]
		if _, exists := c.entries[entry.ID]; exists {
			return fmt.Errorf("duplicate model id %s", entry.ID)
		}
		c.entries[entry.ID] = &entry
		c.ordered = append(c.ordered, entry.ID)
	}

	return nil
}

// Lookup returns the entry for a logical model id.
// Returns *domain.ModelNotFoundError when absent.
func (c *Catalog) Lookup(model string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[model]
	if !ok {
		return nil, &domain.ModelNotFoundError{Model: model}
	}
	return entry, nil
}

// List returns all entries in catalog-file order.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.ordered))
	for _, id := range c.ordered {
		entries = append(entries, *c.entries[id])
	}
	return entries
}
