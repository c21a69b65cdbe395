package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/romdl/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxListingSize = 64 << 20
)

// Fetcher retrieves the item names of a system from its listing endpoint.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	failures   domain.FailureRecorder
	logger     *slog.Logger
}

// NewFetcher creates a fetcher whose requests are bounded by timeout.
func NewFetcher(timeout time.Duration, userAgent string, failures domain.FailureRecorder, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if failures == nil {
		failures = domain.DiscardFailures{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		failures:  failures,
		logger:    logger,
	}
}

// Fetch returns the accepted item names of system in listing order. Any
// failure is logged and yields an empty slice.
func (f *Fetcher) Fetch(ctx context.Context, system domain.System) []string {
	items, err := f.fetch(ctx, system)
	if err != nil {
		lerr := &domain.ListingError{System: system.Name, Err: err}
		f.logger.Error("listing fetch failed", "system", system.Name, "url", system.ListingURL, "error", err)
		f.failures.Record(domain.KindListing, system.Name, lerr)
		return []string{}
	}

	f.logger.Info("loaded listing", "system", system.Name, "count", len(items))
	return items
}

func (f *Fetcher) fetch(ctx context.Context, system domain.System) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, system.ListingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.logger.Debug("listing request", "url", system.ListingURL)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	names, err := Decode(body, system.ListingArrayPath(), system.ListingIDField())
	if err != nil {
		return nil, err
	}

	items := make([]string, 0, len(names))
	for _, name := range names {
		if system.Accepts(name) {
			items = append(items, name)
		}
	}
	return items, nil
}

// Decode extracts the identifier of every element of the array found at the
// dotted arrayPath. Elements must be objects carrying a string idField.
func Decode(body []byte, arrayPath, idField string) ([]string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	node := doc
	for _, key := range strings.Split(arrayPath, ".") {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not an object", domain.ErrArrayNotFound, key)
		}
		if node, ok = obj[key]; !ok {
			return nil, fmt.Errorf("%w: missing key %q", domain.ErrArrayNotFound, key)
		}
	}

	elems, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an array", domain.ErrArrayNotFound, arrayPath)
	}

	names := make([]string, 0, len(elems))
	for i, elem := range elems {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is not an object", domain.ErrFieldMissing, i)
		}
		name, ok := obj[idField].(string)
		if !ok {
			return nil, fmt.Errorf("%w: element %d has no string %q", domain.ErrFieldMissing, i, idField)
		}
		names = append(names, name)
	}
	return names, nil
}
