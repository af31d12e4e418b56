package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Presets maps a preset name to the ordered field selection it stands for.
// An empty selection means every declared field.
type Presets struct {
	Presets map[string][]string `yaml:"presets"`
}

// LoadPresets reads a field-selection preset file. A missing path returns an
// empty preset set, not an error; presets are optional.
func LoadPresets(path string) (*Presets, error) {
	if path == "" {
		return &Presets{Presets: map[string][]string{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Presets{Presets: map[string][]string{}}, nil
		}
		return nil, eris.Wrapf(err, "config: read presets %s", path)
	}
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "config: parse presets %s", path)
	}
	if p.Presets == nil {
		p.Presets = map[string][]string{}
	}
	return &p, nil
}

// Resolve returns the field selection for a preset name.
func (p *Presets) Resolve(name string) ([]string, error) {
	if name == "" {
		return nil, nil
	}
	fields, ok := p.Presets[name]
	if !ok {
		return nil, eris.Errorf("config: unknown field preset %q", name)
	}
	return fields, nil
}
