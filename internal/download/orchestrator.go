package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/romdl/internal/domain"
	"github.com/mmcdole/romdl/internal/install"
	"github.com/shirou/gopsutil/v3/disk"
)

const (
	defaultChunkSize = 1024
	defaultTimeout   = 10 * time.Second
	sampleInterval   = 500 * time.Millisecond
)

// Options configures an Orchestrator.
type Options struct {
	StagingDir      string
	DestinationRoot string
	ChunkSize       int
	Timeout         time.Duration // Connect, header and per-read idle bound
	UserAgent       string

	// Now and FreeSpace default to time.Now and the staging disk's free bytes.
	Now       func() time.Time
	FreeSpace func(path string) (uint64, error)
}

// Orchestrator downloads and installs items one at a time.
type Orchestrator struct {
	opts       Options
	httpClient *http.Client
	installer  *install.Installer
	failures   domain.FailureRecorder
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator that installs through installer.
func NewOrchestrator(opts Options, installer *install.Installer, failures domain.FailureRecorder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if failures == nil {
		failures = domain.DiscardFailures{}
	}
	if installer == nil {
		installer = install.New(nil, logger)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FreeSpace == nil {
		opts.FreeSpace = diskFree
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: opts.Timeout}).DialContext
	transport.TLSHandshakeTimeout = opts.Timeout
	transport.ResponseHeaderTimeout = opts.Timeout

	return &Orchestrator{
		opts:       opts,
		httpClient: &http.Client{Transport: transport},
		installer:  installer,
		failures:   failures,
		logger:     logger,
	}
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// BuildURL joins base and item, escaping each path segment of item.
func BuildURL(base, item string) string {
	segments := strings.Split(item, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// CombinedPercent is the queue-wide percent for item index of total with
// downloaded of size bytes received. Unknown sizes count as zero progress.
func CombinedPercent(index, total int, downloaded, size int64) int {
	if total <= 0 {
		return 0
	}
	var frac float64
	if size > 0 {
		frac = min(float64(downloaded)/float64(size), 1)
	}
	return int((100 * (float64(index) + frac)) / float64(total))
}

// FilePercent is the percent of one item received, or -1 if size is unknown.
func FilePercent(downloaded, size int64) int {
	if size <= 0 {
		return -1
	}
	return int(min(downloaded*100/size, 100))
}

// Run processes items in order and returns one outcome per item. Cancelling
// ctx stops the queue at the next chunk boundary.
func (o *Orchestrator) Run(ctx context.Context, system domain.System, items []string, observer domain.TransferObserver) domain.TransferReport {
	if observer == nil {
		observer = domain.NoOpObserver{}
	}

	report := domain.TransferReport{Outcomes: make([]domain.TransferOutcome, len(items))}
	for i, item := range items {
		report.Outcomes[i] = domain.TransferOutcome{Item: item, Status: domain.OutcomeNotAttempted}
	}

	fs := o.installer.Fs()
	if err := fs.MkdirAll(o.opts.StagingDir, 0755); err != nil {
		o.logger.Error("failed to create staging dir", "path", o.opts.StagingDir, "error", err)
	}
	o.purge()

	destDir := filepath.Join(o.opts.DestinationRoot, system.Folder)
	o.logger.Info("transfer started", "system", system.Name, "items", len(items), "dest", destDir)

	for i, item := range items {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		outcome := o.runItem(ctx, system, destDir, i, len(items), item, observer)
		report.Outcomes[i] = outcome
		o.purge()

		// A cancelled item does not count towards the queue
		done := i
		if outcome.Status == domain.OutcomeCompleted || outcome.Status == domain.OutcomeFailed {
			done = i + 1
		}
		observer.OnTransfer(domain.TransferEvent{
			Kind:    domain.EventItemFinished,
			Item:    item,
			Index:   i,
			Total:   len(items),
			Percent: CombinedPercent(done, len(items), 0, 0),
			Outcome: &outcome,
		})

		if outcome.Status == domain.OutcomeCancelled {
			report.Cancelled = true
			break
		}
	}

	o.logger.Info("transfer finished",
		"system", system.Name,
		"completed", report.Count(domain.OutcomeCompleted),
		"failed", report.Count(domain.OutcomeFailed),
		"cancelled", report.Cancelled)

	observer.OnTransfer(domain.TransferEvent{
		Kind:    domain.EventQueueFinished,
		Total:   len(items),
		Percent: 100,
	})
	return report
}

func (o *Orchestrator) runItem(ctx context.Context, system domain.System, destDir string, index, total int, item string, observer domain.TransferObserver) domain.TransferOutcome {
	now := o.opts.Now()
	job := &domain.DownloadJob{
		ID:          uuid.NewString(),
		Item:        item,
		URL:         BuildURL(system.DownloadURL, item),
		StagingPath: filepath.Join(o.opts.StagingDir, path.Base(item)),
		StartedAt:   now,
		SampledAt:   now,
	}
	outcome := domain.TransferOutcome{JobID: job.ID, Item: item}
	logger := o.logger.With("job", job.ID, "item", item)

	observer.OnTransfer(domain.TransferEvent{
		Kind:        domain.EventItemStarted,
		JobID:       job.ID,
		Item:        item,
		Index:       index,
		Total:       total,
		Percent:     CombinedPercent(index, total, 0, 0),
		FilePercent: -1,
	})

	err := o.download(ctx, job, index, total, observer)
	outcome.Bytes = job.Downloaded
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if ctx.Err() != nil {
			o.removePartial(job.StagingPath)
			logger.Info("transfer cancelled", "downloaded", job.Downloaded)
			outcome.Status = domain.OutcomeCancelled
			return outcome
		}
		o.fail(logger, &outcome, err)
		return outcome
	}

	observer.OnTransfer(domain.TransferEvent{
		Kind:       domain.EventItemInstalling,
		JobID:      job.ID,
		Item:       item,
		Index:      index,
		Total:      total,
		Percent:    CombinedPercent(index, total, job.Downloaded, job.Size),
		Downloaded: job.Downloaded,
		Size:       job.Size,
	})

	files, err := o.install(job.StagingPath, destDir, system.Extensions)
	if err != nil {
		o.fail(logger, &outcome, err)
		return outcome
	}

	outcome.Status = domain.OutcomeCompleted
	outcome.Installed = files
	logger.Info("item installed", "bytes", job.Downloaded, "files", len(files), "duration", o.opts.Now().Sub(job.StartedAt))
	return outcome
}

func (o *Orchestrator) fail(logger *slog.Logger, outcome *domain.TransferOutcome, err error) {
	kind := domain.KindOf(err)
	logger.Error("item failed", "kind", kind, "error", err)
	o.failures.Record(kind, outcome.Item, err)
	outcome.Status = domain.OutcomeFailed
	outcome.Err = err
}

func (o *Orchestrator) download(ctx context.Context, job *domain.DownloadJob, index, total int, observer domain.TransferObserver) error {
	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, job.URL, nil)
	if err != nil {
		return &domain.TransferError{Item: job.Item, Op: "request", Err: err}
	}
	if o.opts.UserAgent != "" {
		req.Header.Set("User-Agent", o.opts.UserAgent)
	}

	o.logger.Debug("download request", "job", job.ID, "url", job.URL)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return &domain.TransferError{Item: job.Item, Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.TransferError{Item: job.Item, Op: "request", Err: fmt.Errorf("%w: %d", domain.ErrUnexpectedStatus, resp.StatusCode)}
	}

	if resp.ContentLength > 0 {
		job.Size = resp.ContentLength
		free, err := o.opts.FreeSpace(o.opts.StagingDir)
		switch {
		case err != nil:
			o.logger.Debug("free space unknown", "dir", o.opts.StagingDir, "error", err)
		case free < uint64(job.Size):
			return &domain.TransferError{
				Item: job.Item,
				Op:   "space check",
				Err:  fmt.Errorf("%w: need %s, have %s", domain.ErrInsufficientSpace, FormatBytes(job.Size), FormatBytes(int64(free))),
			}
		}
	}

	out, err := o.installer.Fs().OpenFile(job.StagingPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return &domain.TransferError{Item: job.Item, Op: "create", Err: err}
	}

	if err := o.stream(ctx, reqCtx, cancel, resp.Body, out, job, index, total, observer); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return &domain.TransferError{Item: job.Item, Op: "write", Err: err}
	}

	o.sample(job, index, total, observer, true)
	return nil
}

// stream copies body into out one chunk at a time. The read watchdog cancels
// the request if no data arrives within the timeout.
func (o *Orchestrator) stream(ctx, reqCtx context.Context, cancel context.CancelCauseFunc, body io.Reader, out io.Writer, job *domain.DownloadJob, index, total int, observer domain.TransferObserver) error {
	watchdog := time.AfterFunc(o.opts.Timeout, func() { cancel(domain.ErrReadTimeout) })
	defer watchdog.Stop()

	buf := make([]byte, o.opts.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, rerr := body.Read(buf)
		watchdog.Reset(o.opts.Timeout)

		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return &domain.TransferError{Item: job.Item, Op: "write", Err: err}
			}
			job.Downloaded += int64(n)
			o.sample(job, index, total, observer, false)
		}

		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if cause := context.Cause(reqCtx); errors.Is(cause, domain.ErrReadTimeout) {
				rerr = cause
			}
			return &domain.TransferError{Item: job.Item, Op: "read", Err: rerr}
		}
	}
}

// sample updates the job speed and emits a progress event once at least
// sampleInterval has passed since the previous sample.
func (o *Orchestrator) sample(job *domain.DownloadJob, index, total int, observer domain.TransferObserver, force bool) {
	now := o.opts.Now()
	elapsed := now.Sub(job.SampledAt)
	if !force && elapsed < sampleInterval {
		return
	}

	delta := job.Downloaded - job.SampledDownloaded
	if ms := elapsed.Milliseconds(); ms > 0 && (delta > 0 || !force) {
		job.Speed = float64(delta) * 1000 / float64(ms)
	}
	job.SampledAt = now
	job.SampledDownloaded = job.Downloaded

	observer.OnTransfer(domain.TransferEvent{
		Kind:        domain.EventItemProgress,
		JobID:       job.ID,
		Item:        job.Item,
		Index:       index,
		Total:       total,
		Percent:     CombinedPercent(index, total, job.Downloaded, job.Size),
		Downloaded:  job.Downloaded,
		Size:        job.Size,
		FilePercent: FilePercent(job.Downloaded, job.Size),
		Speed:       job.Speed,
	})
}

func (o *Orchestrator) install(stagedPath, destDir string, exts []string) ([]string, error) {
	if install.IsArchive(stagedPath) {
		if err := o.installer.Extract(stagedPath, o.opts.StagingDir); err != nil {
			return nil, err
		}
	}
	return o.installer.Relocate(o.opts.StagingDir, destDir, exts)
}

func (o *Orchestrator) removePartial(path string) {
	if err := o.installer.Fs().Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.Warn("failed to remove partial file", "path", path, "error", err)
	}
}

func (o *Orchestrator) purge() {
	if err := o.installer.Purge(o.opts.StagingDir); err != nil {
		o.logger.Warn("failed to purge staging", "error", err)
	}
}
