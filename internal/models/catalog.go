// Package models holds the catalog of selectable chat models.
package models

import (
	"errors"
	"fmt"

	"github.com/nugget/kir/internal/config"
)

// ErrUnknownModel is returned by [Catalog.Resolve] for IDs outside the catalog.
var ErrUnknownModel = errors.New("unknown model")

// Model is a selectable chat model.
type Model struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Provider string `json:"provider,omitempty"`
}

// Catalog is an ordered, read-only set of models with a default.
type Catalog struct {
	models    []Model
	byID      map[string]int
	defaultID string
}

// New builds a catalog. defaultID must name one of models.
func New(models []Model, defaultID string) (*Catalog, error) {
	if len(models) == 0 {
		return nil, errors.New("catalog needs at least one model")
	}
	c := &Catalog{
		models: append([]Model(nil), models...),
		byID:   make(map[string]int, len(models)),
	}
	for i, m := range c.models {
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate model %q", m.ID)
		}
		c.byID[m.ID] = i
	}
	if _, ok := c.byID[defaultID]; !ok {
		return nil, fmt.Errorf("default model %q: %w", defaultID, ErrUnknownModel)
	}
	c.defaultID = defaultID
	return c, nil
}

// FromConfig builds the catalog from validated configuration.
func FromConfig(cfg config.ModelsConfig) (*Catalog, error) {
	list := make([]Model, len(cfg.Available))
	for i, m := range cfg.Available {
		list[i] = Model{ID: m.ID, Label: m.Label, Provider: m.Provider}
	}
	return New(list, cfg.Default)
}

// Default returns the default model ID.
func (c *Catalog) Default() string { return c.defaultID }

// List returns the models in configured order.
func (c *Catalog) List() []Model {
	return append([]Model(nil), c.models...)
}

// IDs returns the model IDs in configured order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.models))
	for i, m := range c.models {
		ids[i] = m.ID
	}
	return ids
}

// Lookup returns the model with the given ID.
func (c *Catalog) Lookup(id string) (Model, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Model{}, false
	}
	return c.models[i], true
}

// Resolve maps a requested model ID to a catalog ID. An empty request
// selects the default.
func (c *Catalog) Resolve(id string) (string, error) {
	if id == "" {
		return c.defaultID, nil
	}
	if _, ok := c.byID[id]; !ok {
		return "", fmt.Errorf("%q: %w", id, ErrUnknownModel)
	}
	return id, nil
}

// Next returns the model after id, wrapping around. Unknown IDs yield
// the first model.
func (c *Catalog) Next(id string) string {
	i, ok := c.byID[id]
	if !ok {
		return c.models[0].ID
	}
	return c.models[(i+1)%len(c.models)].ID
}

// Listing is the catalog as served to clients.
type Listing struct {
	Default string  `json:"default"`
	Models  []Model `json:"models"`
}

// Listing returns a serializable copy of the catalog.
func (c *Catalog) Listing() Listing {
	return Listing{Default: c.defaultID, Models: c.List()}
}

// FromListing rebuilds a catalog received from a gateway.
func FromListing(l Listing) (*Catalog, error) {
	return New(l.Models, l.Default)
}
