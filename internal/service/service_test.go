package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmcdole/romdl/internal/domain"
	"github.com/mmcdole/romdl/internal/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListings struct {
	items map[string][]string
	calls []string
}

func (f *fakeListings) Fetch(_ context.Context, system domain.System) []string {
	f.calls = append(f.calls, system.Name)
	return f.items[system.Name]
}

type fakeRunner struct {
	report domain.TransferReport
	items  []string
}

func (f *fakeRunner) Run(_ context.Context, _ domain.System, items []string, observer domain.TransferObserver) domain.TransferReport {
	f.items = items
	observer.OnTransfer(domain.TransferEvent{Kind: domain.EventQueueFinished})
	return f.report
}

type brokenHistory struct{}

func (brokenHistory) RecordInstall(string, domain.InstallRecord) error {
	return errors.New("disk full")
}
func (brokenHistory) InstalledItems(string) (map[string]domain.InstallRecord, error) {
	return nil, errors.New("corrupt")
}
func (brokenHistory) Forget(string, string) error { return errors.New("corrupt") }
func (brokenHistory) Close() error                { return nil }

var systems = []domain.System{
	{Name: "NES", Folder: "nes", Extensions: []string{".nes"}},
	{Name: "SNES", Folder: "snes", Extensions: []string{".sfc"}},
}

func TestFetchListingAnnotatesHistory(t *testing.T) {
	history, err := store.NewHistoryStore("")
	require.NoError(t, err)
	require.NoError(t, history.RecordInstall("snes", domain.InstallRecord{Item: "Metroid.sfc"}))

	listings := &fakeListings{items: map[string][]string{"SNES": {"Metroid.sfc", "Zelda.sfc"}}}
	svc := NewCatalogService(systems, listings, history, nil)

	listing, err := svc.FetchListing(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, listing.System)
	assert.Equal(t, []string{"Metroid.sfc", "Zelda.sfc"}, listing.Items)
	assert.True(t, listing.IsInstalled("Metroid.sfc"))
	assert.False(t, listing.IsInstalled("Zelda.sfc"))
	assert.Equal(t, []string{"SNES"}, listings.calls)
}

func TestFetchListingOutOfRange(t *testing.T) {
	svc := NewCatalogService(systems, &fakeListings{}, nil, nil)

	_, err := svc.FetchListing(context.Background(), 5)
	assert.ErrorIs(t, err, domain.ErrSystemNotFound)
	_, err = svc.FetchListing(context.Background(), -1)
	assert.ErrorIs(t, err, domain.ErrSystemNotFound)
}

func TestFetchListingHistoryErrorIgnored(t *testing.T) {
	listings := &fakeListings{items: map[string][]string{"NES": {"a.nes"}}}
	svc := NewCatalogService(systems, listings, brokenHistory{}, nil)

	listing, err := svc.FetchListing(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.nes"}, listing.Items)
	assert.Empty(t, listing.Installed)
}

func TestFetchListingForgetsMissingInstalls(t *testing.T) {
	history, err := store.NewHistoryStore("")
	require.NoError(t, err)
	require.NoError(t, history.RecordInstall("nes", domain.InstallRecord{Item: "Mario.zip", Files: []string{"Mario.nes"}}))
	require.NoError(t, history.RecordInstall("nes", domain.InstallRecord{Item: "Zelda.zip", Files: []string{"Zelda.nes", "Zelda (alt).nes"}}))
	require.NoError(t, history.RecordInstall("nes", domain.InstallRecord{Item: "Metroid.nes"}))

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/roms/nes/Zelda (alt).nes", []byte("rom"), 0644))

	listings := &fakeListings{items: map[string][]string{"NES": {"Mario.zip", "Metroid.nes", "Zelda.zip"}}}
	svc := NewCatalogService(systems, listings, history, nil)
	svc.VerifyInstalls(fs, "/roms")

	listing, err := svc.FetchListing(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, listing.IsInstalled("Mario.zip"))
	assert.True(t, listing.IsInstalled("Zelda.zip"), "one remaining file keeps the record")
	assert.True(t, listing.IsInstalled("Metroid.nes"), "records without files are kept")

	installed, err := history.InstalledItems("nes")
	require.NoError(t, err)
	assert.NotContains(t, installed, "Mario.zip")
	assert.Len(t, installed, 2)
}

func TestTransferRecordsCompletedItems(t *testing.T) {
	history, err := store.NewHistoryStore("")
	require.NoError(t, err)

	runner := &fakeRunner{report: domain.TransferReport{Outcomes: []domain.TransferOutcome{
		{JobID: "j1", Item: "a.nes", Status: domain.OutcomeCompleted, Installed: []string{"a.nes"}, Bytes: 10},
		{JobID: "j2", Item: "b.nes", Status: domain.OutcomeFailed},
		{Item: "c.nes", Status: domain.OutcomeNotAttempted},
	}}}
	svc := NewTransferService(runner, history, nil)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	var finished bool
	report := svc.Run(context.Background(), systems[0], []string{"a.nes", "b.nes", "c.nes"}, observerFunc(func(ev domain.TransferEvent) {
		finished = ev.Kind == domain.EventQueueFinished
	}))

	assert.True(t, finished)
	assert.Len(t, report.Outcomes, 3)
	assert.Equal(t, []string{"a.nes", "b.nes", "c.nes"}, runner.items)

	installed, err := history.InstalledItems("nes")
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, domain.InstallRecord{
		Item:        "a.nes",
		Files:       []string{"a.nes"},
		Bytes:       10,
		InstalledAt: fixed,
		JobID:       "j1",
	}, installed["a.nes"])
}

func TestTransferHistoryFailureKeepsReport(t *testing.T) {
	runner := &fakeRunner{report: domain.TransferReport{Outcomes: []domain.TransferOutcome{
		{Item: "a.nes", Status: domain.OutcomeCompleted},
	}}}
	svc := NewTransferService(runner, brokenHistory{}, nil)

	report := svc.Run(context.Background(), systems[0], []string{"a.nes"}, domain.NoOpObserver{})
	assert.Equal(t, 1, report.Count(domain.OutcomeCompleted))
}

type observerFunc func(domain.TransferEvent)

func (f observerFunc) OnTransfer(ev domain.TransferEvent) { f(ev) }
