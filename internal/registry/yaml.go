package registry

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultFixture []byte

// synonymFile is the on-disk YAML shape of a synonym table version.
type synonymFile struct {
	Version string              `yaml:"version"`
	Terms   map[string][]string `yaml:"terms"`
}

// LoadFromYAML reads a synonym table from a YAML file.
func LoadFromYAML(path string) (*SynonymTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read synonyms file")
	}
	return parseYAML(data)
}

// Default returns the bundled synonym table.
func Default() (*SynonymTable, error) {
	return parseYAML(defaultFixture)
}

func parseYAML(data []byte) (*SynonymTable, error) {
	var f synonymFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal synonyms")
	}
	if f.Version == "" {
		return nil, eris.New("registry: synonym file missing version")
	}
	t := NewSynonymTable(f.Version, f.Terms)
	zap.L().Info("registry: synonym table loaded",
		zap.String("version", f.Version),
		zap.Int("terms", len(f.Terms)),
		zap.Int("entries", t.Len()),
	)
	return t, nil
}
