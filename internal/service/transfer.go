package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmcdole/romdl/internal/domain"
)

// TransferService runs transfers and records completed items in history.
type TransferService struct {
	runner  domain.TransferRunner
	history domain.HistoryStore
	now     func() time.Time
	logger  *slog.Logger
}

// NewTransferService creates a transfer service. history may be nil.
func NewTransferService(runner domain.TransferRunner, history domain.HistoryStore, logger *slog.Logger) *TransferService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransferService{runner: runner, history: history, now: time.Now, logger: logger}
}

// Run downloads items for system in order. It blocks until the queue is
// finished or ctx is cancelled.
func (s *TransferService) Run(ctx context.Context, system domain.System, items []string, observer domain.TransferObserver) domain.TransferReport {
	report := s.runner.Run(ctx, system, items, observer)
	if s.history == nil {
		return report
	}

	for _, outcome := range report.Outcomes {
		if outcome.Status != domain.OutcomeCompleted {
			continue
		}
		rec := domain.InstallRecord{
			Item:        outcome.Item,
			Files:       outcome.Installed,
			Bytes:       outcome.Bytes,
			InstalledAt: s.now(),
			JobID:       outcome.JobID,
		}
		if err := s.history.RecordInstall(system.Folder, rec); err != nil {
			s.logger.Error("failed to record install", "item", outcome.Item, "error", err)
		}
	}
	return report
}
