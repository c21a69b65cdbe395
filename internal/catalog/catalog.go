package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/viper"

	"github.com/mmcdole/romdl/internal/domain"
)

// Catalog is the ordered, read-only list of systems.
type Catalog struct {
	systems []domain.System
}

// New wraps an already-parsed system list.
func New(systems []domain.System) *Catalog {
	return &Catalog{systems: systems}
}

// Load reads a catalog document. Any failure is a *domain.FatalInitError.
//
// The document holds a top-level "systems" list; the format follows the
// file extension (yaml, json, toml).
func Load(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, &domain.FatalInitError{Path: path, Err: err}
	}

	var systems []domain.System
	if err := v.UnmarshalKey("systems", &systems); err != nil {
		return nil, &domain.FatalInitError{Path: path, Err: err}
	}

	if err := validate(systems); err != nil {
		return nil, &domain.FatalInitError{Path: path, Err: err}
	}

	return New(systems), nil
}

func validate(systems []domain.System) error {
	if len(systems) == 0 {
		return fmt.Errorf("no systems defined")
	}
	for i, s := range systems {
		switch {
		case s.Name == "":
			return fmt.Errorf("system %d: name is required", i)
		case s.ListingURL == "":
			return fmt.Errorf("system %q: listing_url is required", s.Name)
		case s.DownloadURL == "":
			return fmt.Errorf("system %q: download_url is required", s.Name)
		case s.Folder == "":
			return fmt.Errorf("system %q: folder is required", s.Name)
		case len(s.Extensions) == 0:
			return fmt.Errorf("system %q: at least one extension is required", s.Name)
		}
	}
	return nil
}

// Systems returns the systems in catalog order.
func (c *Catalog) Systems() []domain.System {
	return c.systems
}

// Len returns the number of systems.
func (c *Catalog) Len() int {
	return len(c.systems)
}

// Get returns the system at index i.
func (c *Catalog) Get(i int) (domain.System, bool) {
	if i < 0 || i >= len(c.systems) {
		return domain.System{}, false
	}
	return c.systems[i], true
}

// Lookup resolves an approximate system name to its index. An exact
// case-insensitive match on name or folder wins; otherwise the closest
// fuzzy match is used.
func (c *Catalog) Lookup(name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1, domain.ErrSystemNotFound
	}

	names := make([]string, len(c.systems))
	for i, s := range c.systems {
		if strings.EqualFold(s.Name, name) || strings.EqualFold(s.Folder, name) {
			return i, nil
		}
		names[i] = s.Name
	}

	ranks := fuzzy.RankFindFold(name, names)
	if len(ranks) == 0 {
		return -1, fmt.Errorf("%w: %q", domain.ErrSystemNotFound, name)
	}
	sort.Sort(ranks)
	return ranks[0].OriginalIndex, nil
}
