package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultModel is requested when the caller names no model.
	DefaultModel = "gpt-4o-mini"
	// DefaultMultimodalModel is the model forced when a request carries images.
	DefaultMultimodalModel = "gpt-4o"
)

// Profile describes one callable model. Prices are USD per one million tokens.
type Profile struct {
	Name             string  `yaml:"name" json:"name"`
	InputPerMillion  float64 `yaml:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
	MaxContextTokens int     `yaml:"max_context_tokens" json:"max_context_tokens"`
	SupportsImages   bool    `yaml:"supports_images" json:"supports_images"`
}

// DefaultProfiles mirrors the provider's published list prices.
var DefaultProfiles = []Profile{
	{Name: "gpt-4o", InputPerMillion: 2.50, OutputPerMillion: 10.00, MaxContextTokens: 128000, SupportsImages: true},
	{Name: "gpt-4o-mini", InputPerMillion: 0.15, OutputPerMillion: 0.60, MaxContextTokens: 128000},
	{Name: "gpt-4-turbo", InputPerMillion: 10.00, OutputPerMillion: 30.00, MaxContextTokens: 128000},
}

// Catalog is an immutable registry of model profiles.
type Catalog struct {
	profiles   map[string]Profile
	multimodal string
}

// New builds a catalog. multimodal names the profile used when image input
// forces a model switch and must support images.
func New(profiles []Profile, multimodal string) (*Catalog, error) {
	if len(profiles) == 0 {
		return nil, errors.New("catalog requires at least one model profile")
	}

	c := &Catalog{profiles: make(map[string]Profile, len(profiles))}
	for idx, profile := range profiles {
		name := normalizeName(profile.Name)
		if name == "" {
			return nil, fmt.Errorf("models[%d].name is required", idx)
		}
		if profile.InputPerMillion < 0 || profile.OutputPerMillion < 0 {
			return nil, fmt.Errorf("models[%d] %q prices must be >= 0", idx, profile.Name)
		}
		if _, exists := c.profiles[name]; exists {
			return nil, fmt.Errorf("models[%d] %q is defined more than once", idx, profile.Name)
		}
		profile.Name = name
		c.profiles[name] = profile
	}

	multimodal = normalizeName(multimodal)
	target, ok := c.profiles[multimodal]
	if !ok {
		return nil, fmt.Errorf("multimodal model %q is not in the catalog", multimodal)
	}
	if !target.SupportsImages {
		return nil, fmt.Errorf("multimodal model %q does not support images", multimodal)
	}
	c.multimodal = multimodal

	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(DefaultProfiles, DefaultMultimodalModel)
	if err != nil {
		panic(err)
	}
	return c
}

// Get looks up a profile by model name. Lookup is case-insensitive.
func (c *Catalog) Get(name string) (Profile, bool) {
	profile, ok := c.profiles[normalizeName(name)]
	return profile, ok
}

// Multimodal returns the designated image-capable profile.
func (c *Catalog) Multimodal() Profile {
	return c.profiles[c.multimodal]
}

// Names returns the catalog's model names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profiles returns every profile sorted by name.
func (c *Catalog) Profiles() []Profile {
	names := c.Names()
	out := make([]Profile, 0, len(names))
	for _, name := range names {
		out = append(out, c.profiles[name])
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
