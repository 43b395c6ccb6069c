package scenario

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voxflow-go/voxflow/pkg/engine/cache"
	"github.com/voxflow-go/voxflow/pkg/engine/callerr"
)

// Loader reads `<dir>/<name>.json` scenario documents, validates them,
// and caches the immutable definitions.
type Loader struct {
	dir    string
	cache  *cache.Store
	logger *slog.Logger
}

// NewLoader creates a Loader backed by the shared cache.
func NewLoader(dir string, c *cache.Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, cache: c, logger: logger}
}

// Load returns the definition for name, reading and validating it on
// first use.
func (l *Loader) Load(name string) (*Definition, error) {
	if v, ok := l.cache.Get(cache.NamespaceScenarios, name); ok {
		return v.(*Definition), nil
	}

	path := filepath.Join(l.dir, name+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, callerr.NewNotFoundError("scenario " + name + " not found")
		}
		return nil, fmt.Errorf("read scenario %q: %w", name, err)
	}

	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, callerr.NewScenarioValidationError("scenario "+name+" is not valid JSON: "+err.Error(), name)
	}
	if def.Name == "" {
		def.Name = name
	}
	if err := Validate(&def); err != nil {
		return nil, err
	}

	l.cache.Set(cache.NamespaceScenarios, name, &def)
	l.logger.Info("scenario loaded", "scenario", def.Name, "steps", len(def.Steps), "rail", len(def.Rail))
	return &def, nil
}
