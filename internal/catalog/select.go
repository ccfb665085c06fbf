package catalog

import (
	"fmt"
	"strings"
)

// Selection is the result of resolving the model for one generation.
type Selection struct {
	Requested  string `json:"requested_model"`
	Effective  string `json:"effective_model"`
	Overridden bool   `json:"overridden"`
	Notice     string `json:"notice,omitempty"`
}

// Select resolves the effective model. Image input always ends on an
// image-capable profile; without images the requested name is kept as-is,
// even when the catalog does not know it.
func (c *Catalog) Select(requested string, hasImages bool) Selection {
	requested = strings.TrimSpace(requested)
	selection := Selection{Requested: requested, Effective: requested}
	if !hasImages {
		return selection
	}

	if profile, ok := c.Get(requested); ok && profile.SupportsImages {
		selection.Effective = profile.Name
		return selection
	}

	multimodal := c.Multimodal()
	selection.Effective = multimodal.Name
	selection.Overridden = true
	selection.Notice = fmt.Sprintf("model %q does not accept images; using %q instead", requested, multimodal.Name)
	return selection
}
