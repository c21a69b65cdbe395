package domain

import (
	"context"
)

// ListingSource fetches the item names of a system. Failures are absorbed:
// an unreachable or malformed listing yields an empty slice.
type ListingSource interface {
	Fetch(ctx context.Context, system System) []string
}

// TransferRunner downloads and installs items sequentially.
type TransferRunner interface {
	Run(ctx context.Context, system System, items []string, observer TransferObserver) TransferReport
}

// HistoryStore persists which items have been installed per system.
type HistoryStore interface {
	RecordInstall(folder string, record InstallRecord) error
	InstalledItems(folder string) (map[string]InstallRecord, error)
	Forget(folder, item string) error
	Close() error
}

// FailureRecorder appends entries to the failure log.
type FailureRecorder interface {
	Record(kind ErrorKind, detail string, err error)
}

// DiscardFailures is a FailureRecorder that drops every entry.
type DiscardFailures struct{}

func (DiscardFailures) Record(ErrorKind, string, error) {}
