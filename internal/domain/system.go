package domain

import (
	"strings"
)

// Listing response defaults used when a system leaves the shape hints empty.
const (
	DefaultArrayPath = "files"
	DefaultIDField   = "name"
)

// System describes one catalog entry: where its items are listed, where they
// are downloaded from, which files it accepts and where they are installed.
type System struct {
	Name        string   `mapstructure:"name"`         // Display name
	ListingURL  string   `mapstructure:"listing_url"`  // Item-listing endpoint
	DownloadURL string   `mapstructure:"download_url"` // Base download endpoint
	Extensions  []string `mapstructure:"extensions"`   // Accepted file extensions (".nes", "zip", ...)
	Folder      string   `mapstructure:"folder"`       // Destination folder name
	ArrayPath   string   `mapstructure:"array_path"`   // Dotted path to the item array (optional)
	IDField     string   `mapstructure:"id_field"`     // Identifier field in each element (optional)
}

// ListingArrayPath returns the configured array path or the default.
func (s System) ListingArrayPath() string {
	if s.ArrayPath == "" {
		return DefaultArrayPath
	}
	return s.ArrayPath
}

// ListingIDField returns the configured identifier field or the default.
func (s System) ListingIDField() string {
	if s.IDField == "" {
		return DefaultIDField
	}
	return s.IDField
}

// Accepts reports whether name ends with one of the system's extensions.
func (s System) Accepts(name string) bool {
	return HasExtension(name, s.Extensions)
}

// HasExtension reports whether name ends, case-insensitively, with any of exts.
// Extensions may be given with or without the leading dot.
func HasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Listing is the fetched item set for one system, in listing order.
type Listing struct {
	System    int                      // Index into the catalog
	Items     []string                 // Item names, listing order preserved
	Installed map[string]InstallRecord // Items already installed, keyed by name
}

// IsInstalled reports whether item has an install record.
func (l Listing) IsInstalled(item string) bool {
	_, ok := l.Installed[item]
	return ok
}
