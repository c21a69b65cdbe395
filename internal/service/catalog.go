package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mmcdole/romdl/internal/domain"
	"github.com/spf13/afero"
)

// CatalogService serves the system list and per-system listings annotated
// with install history.
type CatalogService struct {
	systems  []domain.System
	listings domain.ListingSource
	history  domain.HistoryStore
	logger   *slog.Logger

	// Set by VerifyInstalls
	fs       afero.Fs
	destRoot string
}

// NewCatalogService creates a catalog service. history may be nil.
func NewCatalogService(systems []domain.System, listings domain.ListingSource, history domain.HistoryStore, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{systems: systems, listings: listings, history: history, logger: logger}
}

// Systems returns the catalog in file order.
func (s *CatalogService) Systems() []domain.System {
	return s.systems
}

// VerifyInstalls makes FetchListing check install records against the ROM
// folders under root. Records whose files are all gone are forgotten.
func (s *CatalogService) VerifyInstalls(fs afero.Fs, root string) {
	s.fs = fs
	s.destRoot = root
}

// FetchListing fetches the items of the system at index. A failed fetch is
// an empty listing, not an error.
func (s *CatalogService) FetchListing(ctx context.Context, index int) (domain.Listing, error) {
	if index < 0 || index >= len(s.systems) {
		return domain.Listing{}, fmt.Errorf("%w: index %d", domain.ErrSystemNotFound, index)
	}
	system := s.systems[index]

	listing := domain.Listing{
		System: index,
		Items:  s.listings.Fetch(ctx, system),
	}

	if s.history != nil {
		installed, err := s.history.InstalledItems(system.Folder)
		if err != nil {
			s.logger.Warn("failed to read install history", "system", system.Name, "error", err)
		} else {
			if s.fs != nil {
				s.pruneMissing(system, installed)
			}
			listing.Installed = installed
		}
	}

	s.logger.Debug("fetched listing", "system", system.Name, "items", len(listing.Items), "installed", len(listing.Installed))
	return listing, nil
}

func (s *CatalogService) pruneMissing(system domain.System, installed map[string]domain.InstallRecord) {
	dir := filepath.Join(s.destRoot, system.Folder)
	for item, rec := range installed {
		if len(rec.Files) == 0 || s.anyExists(dir, rec.Files) {
			continue
		}
		if err := s.history.Forget(system.Folder, item); err != nil {
			s.logger.Warn("failed to forget install", "system", system.Name, "item", item, "error", err)
			continue
		}
		delete(installed, item)
		s.logger.Info("forgot install with missing files", "system", system.Name, "item", item)
	}
}

func (s *CatalogService) anyExists(dir string, files []string) bool {
	for _, f := range files {
		if ok, err := afero.Exists(s.fs, filepath.Join(dir, f)); ok || err != nil {
			return true
		}
	}
	return false
}
