package lookup

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog holds the name and address parts synthetic businesses are
// assembled from, shared by template prospecting and the offline lookup.
type Catalog struct {
	NamePrefixes   []string `yaml:"name_prefixes"`
	NameSuffixes   []string `yaml:"name_suffixes"`
	Streets        []string `yaml:"streets"`
	FallbackCities []string `yaml:"fallback_cities"`
}

// ParseCatalog decodes a YAML catalog. Every list must be non-empty.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "lookup: parse catalog")
	}
	if len(c.NamePrefixes) == 0 || len(c.NameSuffixes) == 0 || len(c.Streets) == 0 || len(c.FallbackCities) == 0 {
		return nil, eris.New("lookup: catalog has an empty list")
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}
