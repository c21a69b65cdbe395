package domain

import (
	"time"
)

// OutcomeStatus tags the result of one item in a transfer run.
type OutcomeStatus int

const (
	OutcomeNotAttempted OutcomeStatus = iota
	OutcomeCompleted
	OutcomeFailed
	OutcomeCancelled
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "not_attempted"
	}
}

// TransferOutcome is the per-item result of a transfer run.
type TransferOutcome struct {
	JobID     string
	Item      string
	Status    OutcomeStatus
	Err       error    // Set when Status is OutcomeFailed
	Installed []string // Files placed in the destination folder
	Bytes     int64
}

// TransferReport summarizes a whole run. Outcomes holds one entry per
// requested item, in request order.
type TransferReport struct {
	Outcomes  []TransferOutcome
	Cancelled bool
}

// Count returns how many outcomes have the given status.
func (r TransferReport) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// DownloadJob is the single in-flight transfer.
type DownloadJob struct {
	ID          string
	Item        string
	URL         string
	StagingPath string
	Downloaded  int64
	Size        int64 // Declared size, 0 if unknown
	StartedAt   time.Time

	// Speed sampling state
	SampledAt         time.Time
	SampledDownloaded int64
	Speed             float64 // Bytes per second at the last sample
}

// InstallRecord remembers a completed install.
type InstallRecord struct {
	Item        string    `json:"item"`
	Files       []string  `json:"files"`
	Bytes       int64     `json:"bytes"`
	InstalledAt time.Time `json:"installed_at"`
	JobID       string    `json:"job_id"`
}

// TransferEventKind identifies a TransferEvent.
type TransferEventKind int

const (
	EventItemStarted TransferEventKind = iota
	EventItemProgress
	EventItemInstalling
	EventItemFinished
	EventQueueFinished
)

// TransferEvent reports transfer progress to observers.
type TransferEvent struct {
	Kind        TransferEventKind
	JobID       string
	Item        string
	Index       int // 0-based position in the queue
	Total       int // Queue length
	Percent     int // Combined queue percent
	Downloaded  int64
	Size        int64   // 0 if unknown
	FilePercent int     // -1 when Size is unknown
	Speed       float64 // Bytes per second, last sample
	Outcome     *TransferOutcome
}

// TransferObserver receives progress events during a transfer run.
type TransferObserver interface {
	OnTransfer(event TransferEvent)
}

// NoOpObserver discards transfer events (for testing/batch operations).
type NoOpObserver struct{}

func (NoOpObserver) OnTransfer(TransferEvent) {}
