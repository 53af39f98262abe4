package parser

import (
	"fmt"

	"github.com/pjw7536/react-timeline2/internal/models"
)

// Registry holds one normalizer per kind.
type Registry struct {
	normalizers map[models.Kind]Normalizer
}

var globalRegistry = NewRegistry(GetGlobalIntern())

// NewRegistry creates a registry with the five built-in normalizers.
func NewRegistry(intern *StringIntern) *Registry {
	if intern == nil {
		intern = NewStringIntern()
	}
	r := &Registry{normalizers: make(map[models.Kind]Normalizer, len(models.AllKinds))}
	r.Register(&kindNormalizer{kind: models.KindEquipmentState, intern: intern})
	r.Register(&kindNormalizer{kind: models.KindInterlock, extract: extractInterlock, intern: intern})
	r.Register(&kindNormalizer{kind: models.KindRecipeChange, extract: extractRecipe, intern: intern})
	r.Register(&kindNormalizer{kind: models.KindAlarm, intern: intern})
	r.Register(&kindNormalizer{kind: models.KindIssue, extract: extractIssue, intern: intern})
	return r
}

// GetGlobalRegistry returns the shared registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register adds or replaces the normalizer for its kind.
func (r *Registry) Register(n Normalizer) {
	r.normalizers[n.Kind()] = n
}

// For returns the normalizer of kind.
func (r *Registry) For(kind models.Kind) (Normalizer, error) {
	n, ok := r.normalizers[kind]
	if !ok {
		return nil, fmt.Errorf("no normalizer registered for kind: %s", kind)
	}
	return n, nil
}

// Normalize runs the normalizer of kind over rows.
func (r *Registry) Normalize(kind models.Kind, rows []models.RawRow, opts Options) ([]models.LogEvent, error) {
	n, err := r.For(kind)
	if err != nil {
		return nil, err
	}
	return n.Normalize(rows, opts), nil
}
