package catalog

import "gopkg.in/yaml.v3"

// Entry holds the catalog metadata for one logical model id.
type Entry struct {
	// Logical model id, set from the YAML key during unmarshaling.
	ID string `yaml:"-" json:"id"`

	// Provider that serves this model.
	Provider string `yaml:"-" json:"provider"`

	// ProviderModel is the provider-native id when it differs from the
	// logical id.
	ProviderModel string `yaml:"provider_model" json:"provider_model,omitempty"`

	DisplayName string `yaml:"display_name" json:"display_name"`
	Region      string `yaml:"region" json:"region,omitempty"`

	SupportsTools     bool `yaml:"supports_tools" json:"supports_tools"`
	SupportsReasoning bool `yaml:"supports_reasoning" json:"supports_reasoning"`
	SupportsVision    bool `yaml:"supports_vision" json:"supports_vision"`

	ContextWindow int `yaml:"context_window" json:"context_window"`
	MaxOutput     int `yaml:"max_output" json:"max_output"`

	// Cost per million tokens. Nil means pricing is unknown for this
	// model; derived costs are then unknown too, never zero.
	InputCostPerMTok  *float64 `yaml:"input_cost_per_mtok" json:"input_cost_per_mtok,omitempty"`
	OutputCostPerMTok *float64 `yaml:"output_cost_per_mtok" json:"output_cost_per_mtok,omitempty"`
}

// NativeModel returns the provider-native id to send upstream.
func (e *Entry) NativeModel() string {
	if e.ProviderModel != "" {
		return e.ProviderModel
	}
	return e.ID
}

// providerFile is one embedded YAML catalog file.
type providerFile struct {
	Provider string  `yaml:"provider"`
	Models   []Entry `yaml:"-"`
}

// UnmarshalYAML preserves the model order of the YAML file; the default
// map decoding would lose it.
func (p *providerFile) UnmarshalYAML(node *yaml.Node) error {
	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value == "provider" {
			p.Provider = node.Content[i+1].Value
			break
		}
	}

	type modelsOnly struct {
		Models map[string]Entry `yaml:"models"`
	}
	var m modelsOnly
	if err := node.Decode(&m); err != nil {
		return err
	}

	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value == "models" {
			modelsNode := node.Content[i+1]
			for j := 0; j < len(modelsNode.Content); j += 2 {
				modelID := modelsNode.Content[j].Value
				if entry, ok := m.Models[modelID]; ok {
					entry.ID = modelID
					entry.Provider = p.Provider
					p.Models = append(p.Models, entry)
				}
			}
			break
		}
	}

	return nil
}
