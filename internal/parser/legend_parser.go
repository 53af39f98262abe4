package parser

import (
	"io"
	"os"

	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseLegend reads a YAML legend file. Kinds missing from the file keep the
// built-in legend.
func ParseLegend(filePath string) (*models.Legend, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open legend %s", filePath)
	}
	defer file.Close()

	return ParseLegendFromReader(file)
}

// ParseLegendFromReader parses a legend from an io.Reader.
func ParseLegendFromReader(r io.Reader) (*models.Legend, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read legend")
	}

	var parsed models.Legend
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(err, "parse legend yaml")
	}

	legend := models.DefaultLegend()
	if parsed.DefaultColor != "" {
		legend.DefaultColor = parsed.DefaultColor
	}
	for name, kl := range parsed.Kinds {
		kind, err := models.ParseKind(string(name))
		if err != nil {
			return nil, errors.Wrap(err, "legend")
		}
		legend.Kinds[kind] = kl
	}
	return legend, nil
}
