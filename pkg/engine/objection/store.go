package objection

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voxflow-go/voxflow/pkg/engine/cache"
)

// GeneralTheme is merged into every requested theme. Its entries are
// registered first, so on a duplicate keyword the general response
// shadows the theme-specific one (see NewMatcher).
const GeneralTheme = "general"

// Store loads per-theme datasets from disk and caches built matchers.
type Store struct {
	dir    string
	cache  *cache.Store
	logger *slog.Logger
}

// NewStore creates a Store reading `<dir>/<theme>.json` documents.
func NewStore(dir string, c *cache.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, cache: c, logger: logger}
}

// MatcherFor returns the matcher for theme, building and caching it on
// first use. The general theme's entries are always merged in.
func (s *Store) MatcherFor(theme string) (*Matcher, error) {
	if v, ok := s.cache.Get(cache.NamespaceObjections, theme); ok {
		return v.(*Matcher), nil
	}

	var entries []Entry
	if theme != GeneralTheme {
		general, err := s.readTheme(GeneralTheme)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		entries = append(entries, general...)
	}
	themed, err := s.readTheme(theme)
	if err != nil {
		return nil, err
	}
	entries = append(entries, themed...)

	m := NewMatcher(entries, s.logger)
	s.cache.Set(cache.NamespaceObjections, theme, m)
	s.logger.Info("objection set loaded", "theme", theme, "entries", m.Len())
	return m, nil
}

func (s *Store) readTheme(theme string) ([]Entry, error) {
	path := filepath.Join(s.dir, theme+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("read objection set %q: %w", theme, err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode objection set %q: %w", theme, err)
	}
	for i := range entries {
		if entries[i].Theme == "" {
			entries[i].Theme = theme
		}
		if entries[i].Kind == "" {
			entries[i].Kind = KindObjection
		}
	}
	return entries, nil
}
