package download

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/romdl/internal/domain"
	"github.com/mmcdole/romdl/internal/install"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stagingDir = "/staging"
	destRoot   = "/roms"
)

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

type observerFunc func(domain.TransferEvent)

func (f observerFunc) OnTransfer(ev domain.TransferEvent) { f(ev) }

type failureSpy struct {
	mu    sync.Mutex
	kinds []domain.ErrorKind
	items []string
}

func (s *failureSpy) Record(kind domain.ErrorKind, detail string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	s.items = append(s.items, detail)
}

// fileServer serves bodies by path and records every requested path.
type fileServer struct {
	*httptest.Server
	mu        sync.Mutex
	requested []string
}

func newFileServer(t *testing.T, files map[string][]byte) *fileServer {
	t.Helper()
	fsrv := &fileServer{}
	fsrv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/dl/")
		fsrv.mu.Lock()
		fsrv.requested = append(fsrv.requested, name)
		fsrv.mu.Unlock()

		body, ok := files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	t.Cleanup(fsrv.Close)
	return fsrv
}

func (s *fileServer) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requested...)
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestOrchestrator(t *testing.T, failures domain.FailureRecorder, mutate func(*Options)) (*Orchestrator, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	clock := &stepClock{t: time.Unix(0, 0), step: 600 * time.Millisecond}
	opts := Options{
		StagingDir:      stagingDir,
		DestinationRoot: destRoot,
		ChunkSize:       1024,
		Timeout:         2 * time.Second,
		UserAgent:       "romdl-test",
		Now:             clock.Now,
		FreeSpace:       func(string) (uint64, error) { return 1 << 40, nil },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewOrchestrator(opts, install.New(fs, nil), failures, nil), fs
}

func nesSystem(base string) domain.System {
	return domain.System{
		Name:        "NES",
		DownloadURL: base + "/dl",
		Extensions:  []string{".nes"},
		Folder:      "nes",
	}
}

func assertStagingEmpty(t *testing.T, fs afero.Fs) {
	t.Helper()
	entries, err := afero.ReadDir(fs, stagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging must be empty after a run")
}

func statuses(report domain.TransferReport) []domain.OutcomeStatus {
	out := make([]domain.OutcomeStatus, len(report.Outcomes))
	for i, o := range report.Outcomes {
		out[i] = o.Status
	}
	return out
}

func TestRunInstallsArchivesAndPlainFiles(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{
		"Mario.zip": zipOf(t, map[string]string{"Mario.nes": "mario", "readme.txt": "notes"}),
		"Zelda.nes": []byte("zelda"),
	})
	o, fs := newTestOrchestrator(t, nil, nil)

	report := o.Run(context.Background(), nesSystem(srv.URL), []string{"Mario.zip", "Zelda.nes"}, nil)

	assert.False(t, report.Cancelled)
	assert.Equal(t, []domain.OutcomeStatus{domain.OutcomeCompleted, domain.OutcomeCompleted}, statuses(report))
	assert.Equal(t, []string{"Mario.nes"}, report.Outcomes[0].Installed)
	assert.Equal(t, []string{"Zelda.nes"}, report.Outcomes[1].Installed)
	assert.Equal(t, int64(5), report.Outcomes[1].Bytes)

	data, err := afero.ReadFile(fs, "/roms/nes/Mario.nes")
	require.NoError(t, err)
	assert.Equal(t, "mario", string(data))
	data, err = afero.ReadFile(fs, "/roms/nes/Zelda.nes")
	require.NoError(t, err)
	assert.Equal(t, "zelda", string(data))

	ok, _ := afero.Exists(fs, "/roms/nes/readme.txt")
	assert.False(t, ok)
	assertStagingEmpty(t, fs)
}

func TestRunContinuesAfterFailure(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{
		"one.nes":   []byte("1"),
		"three.nes": []byte("3"),
	})
	spy := &failureSpy{}
	o, fs := newTestOrchestrator(t, spy, nil)

	items := []string{"one.nes", "two.nes", "three.nes"}
	report := o.Run(context.Background(), nesSystem(srv.URL), items, nil)

	require.Len(t, report.Outcomes, len(items))
	assert.Equal(t, []domain.OutcomeStatus{
		domain.OutcomeCompleted,
		domain.OutcomeFailed,
		domain.OutcomeCompleted,
	}, statuses(report))
	assert.False(t, report.Cancelled)

	failed := report.Outcomes[1]
	assert.ErrorIs(t, failed.Err, domain.ErrUnexpectedStatus)
	var terr *domain.TransferError
	assert.True(t, errors.As(failed.Err, &terr))

	assert.Equal(t, []domain.ErrorKind{domain.KindTransfer}, spy.kinds)
	assert.Equal(t, []string{"two.nes"}, spy.items)
	assert.Equal(t, items, srv.requests(), "every item is attempted")
	assertStagingEmpty(t, fs)
}

func TestRunCancellationStopsQueue(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{
		"A.zip": zipOf(t, map[string]string{"A.nes": "a"}),
		"B.zip": bytes.Repeat([]byte("b"), 64*1024),
		"C.zip": zipOf(t, map[string]string{"C.nes": "c"}),
	})
	o, fs := newTestOrchestrator(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cancelledAt int64
	finished := map[string]int{}
	observer := observerFunc(func(ev domain.TransferEvent) {
		if ev.Kind == domain.EventItemFinished {
			finished[ev.Item] = ev.Percent
		}
		if ev.Kind == domain.EventItemProgress && ev.Item == "B.zip" && cancelledAt == 0 {
			cancelledAt = ev.Downloaded
			cancel()
		}
	})

	report := o.Run(ctx, nesSystem(srv.URL), []string{"A.zip", "B.zip", "C.zip"}, observer)

	assert.True(t, report.Cancelled)
	assert.Equal(t, []domain.OutcomeStatus{
		domain.OutcomeCompleted,
		domain.OutcomeCancelled,
		domain.OutcomeNotAttempted,
	}, statuses(report))
	assert.Equal(t, 1, report.Count(domain.OutcomeNotAttempted))

	assert.Greater(t, cancelledAt, int64(0))
	assert.Equal(t, cancelledAt, report.Outcomes[1].Bytes, "no chunk is read after cancellation")
	assert.Equal(t, map[string]int{"A.zip": 33, "B.zip": 33}, finished, "the cancelled item adds nothing to the queue percent")

	ok, _ := afero.Exists(fs, "/roms/nes/A.nes")
	assert.True(t, ok)
	ok, _ = afero.Exists(fs, stagingDir+"/B.zip")
	assert.False(t, ok, "partial file removed from staging")
	ok, _ = afero.Exists(fs, "/roms/nes/B.zip")
	assert.False(t, ok)
	assert.NotContains(t, srv.requests(), "C.zip")
	assertStagingEmpty(t, fs)
}

func TestRunAlreadyCancelled(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{"a.nes": []byte("a")})
	o, _ := newTestOrchestrator(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := o.Run(ctx, nesSystem(srv.URL), []string{"a.nes", "b.nes"}, nil)
	assert.True(t, report.Cancelled)
	assert.Equal(t, []domain.OutcomeStatus{domain.OutcomeNotAttempted, domain.OutcomeNotAttempted}, statuses(report))
	assert.Empty(t, srv.requests())
}

func TestRunEmptyQueue(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, nil)

	var kinds []domain.TransferEventKind
	report := o.Run(context.Background(), nesSystem("http://unused"), nil, observerFunc(func(ev domain.TransferEvent) {
		kinds = append(kinds, ev.Kind)
	}))

	assert.Empty(t, report.Outcomes)
	assert.False(t, report.Cancelled)
	assert.Equal(t, []domain.TransferEventKind{domain.EventQueueFinished}, kinds)
}

func TestRunProgressIsMonotonic(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{
		"a.nes": bytes.Repeat([]byte("a"), 10*1024),
		"b.nes": bytes.Repeat([]byte("b"), 7*1024+100),
	})
	o, _ := newTestOrchestrator(t, nil, nil)

	var events []domain.TransferEvent
	report := o.Run(context.Background(), nesSystem(srv.URL), []string{"a.nes", "b.nes"}, observerFunc(func(ev domain.TransferEvent) {
		events = append(events, ev)
	}))
	require.Equal(t, 2, report.Count(domain.OutcomeCompleted))

	lastPercent := 0
	lastDownloaded := map[string]int64{}
	lastFile := map[string]int{}
	progress := 0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, lastPercent, "queue percent regressed at %+v", ev)
		lastPercent = ev.Percent

		if ev.Kind != domain.EventItemProgress {
			continue
		}
		progress++
		assert.GreaterOrEqual(t, ev.Downloaded, lastDownloaded[ev.Item])
		assert.GreaterOrEqual(t, ev.FilePercent, lastFile[ev.Item])
		assert.Greater(t, ev.Speed, 0.0)
		lastDownloaded[ev.Item] = ev.Downloaded
		lastFile[ev.Item] = ev.FilePercent
	}

	assert.Greater(t, progress, 10)
	assert.Equal(t, 100, lastFile["a.nes"])
	assert.Equal(t, 100, lastFile["b.nes"])
	assert.Equal(t, int64(10*1024), lastDownloaded["a.nes"])
	assert.Equal(t, 100, lastPercent)
}

func TestRunSpeedSampling(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{"a.nes": bytes.Repeat([]byte("a"), 4096)})
	o, _ := newTestOrchestrator(t, nil, nil)

	var first *domain.TransferEvent
	o.Run(context.Background(), nesSystem(srv.URL), []string{"a.nes"}, observerFunc(func(ev domain.TransferEvent) {
		if ev.Kind == domain.EventItemProgress && first == nil {
			first = &ev
		}
	}))

	require.NotNil(t, first)
	// the clock steps 600ms per reading, so the first chunk is sampled
	require.Greater(t, first.Downloaded, int64(0))
	assert.LessOrEqual(t, first.Downloaded, int64(1024))
	assert.InDelta(t, float64(first.Downloaded)*1000/600, first.Speed, 0.01)
	assert.Equal(t, int(first.Downloaded*100/4096), first.FilePercent)
	assert.Equal(t, first.FilePercent, first.Percent)
}

func TestRunUnknownSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 2048))
		w.(http.Flusher).Flush()
		w.Write(bytes.Repeat([]byte("y"), 2048))
	}))
	t.Cleanup(srv.Close)
	o, fs := newTestOrchestrator(t, nil, nil)

	var progress []domain.TransferEvent
	report := o.Run(context.Background(), nesSystem(srv.URL), []string{"a.nes", "b.nes"}, observerFunc(func(ev domain.TransferEvent) {
		if ev.Kind == domain.EventItemProgress {
			progress = append(progress, ev)
		}
	}))

	require.Equal(t, 2, report.Count(domain.OutcomeCompleted))
	require.NotEmpty(t, progress)
	for _, ev := range progress {
		assert.Equal(t, int64(0), ev.Size)
		assert.Equal(t, -1, ev.FilePercent)
		assert.Equal(t, 100*ev.Index/ev.Total, ev.Percent)
	}

	data, err := afero.ReadFile(fs, "/roms/nes/a.nes")
	require.NoError(t, err)
	assert.Len(t, data, 4096)
}

func TestRunInsufficientSpace(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{"big.nes": bytes.Repeat([]byte("z"), 4096)})
	spy := &failureSpy{}
	o, fs := newTestOrchestrator(t, spy, func(opts *Options) {
		opts.FreeSpace = func(string) (uint64, error) { return 100, nil }
	})

	report := o.Run(context.Background(), nesSystem(srv.URL), []string{"big.nes"}, nil)

	require.Equal(t, domain.OutcomeFailed, report.Outcomes[0].Status)
	assert.ErrorIs(t, report.Outcomes[0].Err, domain.ErrInsufficientSpace)
	assert.Equal(t, []domain.ErrorKind{domain.KindTransfer}, spy.kinds)
	ok, _ := afero.Exists(fs, "/roms/nes/big.nes")
	assert.False(t, ok)
}

func TestRunFreeSpaceErrorIgnored(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{"a.nes": []byte("a")})
	o, _ := newTestOrchestrator(t, nil, func(opts *Options) {
		opts.FreeSpace = func(string) (uint64, error) { return 0, errors.New("statfs failed") }
	})

	report := o.Run(context.Background(), nesSystem(srv.URL), []string{"a.nes"}, nil)
	assert.Equal(t, domain.OutcomeCompleted, report.Outcomes[0].Status)
}

func TestRunReadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	spy := &failureSpy{}
	o, fs := newTestOrchestrator(t, spy, func(opts *Options) {
		opts.Timeout = 100 * time.Millisecond
		opts.Now = time.Now
	})

	report := o.Run(context.Background(), nesSystem(srv.URL), []string{"stall.nes"}, nil)

	require.Equal(t, domain.OutcomeFailed, report.Outcomes[0].Status)
	assert.ErrorIs(t, report.Outcomes[0].Err, domain.ErrReadTimeout)
	assert.False(t, report.Cancelled, "a timeout is a failure, not a cancellation")
	assert.Len(t, spy.kinds, 1)
	assertStagingEmpty(t, fs)
}

func TestRunCorruptArchiveIsInstallFailure(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{
		"bad.zip":  []byte("definitely not a zip"),
		"good.nes": []byte("ok"),
	})
	spy := &failureSpy{}
	o, fs := newTestOrchestrator(t, spy, nil)

	report := o.Run(context.Background(), nesSystem(srv.URL), []string{"bad.zip", "good.nes"}, nil)

	assert.Equal(t, []domain.OutcomeStatus{domain.OutcomeFailed, domain.OutcomeCompleted}, statuses(report))
	var ierr *domain.InstallError
	assert.True(t, errors.As(report.Outcomes[0].Err, &ierr))
	assert.Equal(t, []domain.ErrorKind{domain.KindInstall}, spy.kinds)
	assertStagingEmpty(t, fs)
}

func TestRunSendsUserAgentAndEscapesNames(t *testing.T) {
	var gotUA, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotPath = r.URL.EscapedPath()
		w.Write([]byte("rom"))
	}))
	t.Cleanup(srv.Close)
	o, fs := newTestOrchestrator(t, nil, nil)

	report := o.Run(context.Background(), nesSystem(srv.URL), []string{"Super Mario #1.nes"}, nil)

	require.Equal(t, domain.OutcomeCompleted, report.Outcomes[0].Status)
	assert.Equal(t, "romdl-test", gotUA)
	assert.Equal(t, "/dl/Super%20Mario%20%231.nes", gotPath)
	ok, _ := afero.Exists(fs, "/roms/nes/Super Mario #1.nes")
	assert.True(t, ok)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base, item, want string
	}{
		{"http://h/files", "Zelda.zip", "http://h/files/Zelda.zip"},
		{"http://h/files/", "Zelda.zip", "http://h/files/Zelda.zip"},
		{"http://h", "Super Mario.zip", "http://h/Super%20Mario.zip"},
		{"http://h", "set/a?b.nes", "http://h/set/a%3Fb.nes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BuildURL(tt.base, tt.item))
	}
}

func TestCombinedPercent(t *testing.T) {
	tests := []struct {
		index, total     int
		downloaded, size int64
		want             int
	}{
		{0, 3, 0, 0, 0},
		{1, 3, 0, 0, 33},
		{1, 3, 500, 0, 33},
		{1, 2, 50, 100, 75},
		{2, 3, 200, 100, 100},
		{0, 4, 1, 3, 8},
		{0, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CombinedPercent(tt.index, tt.total, tt.downloaded, tt.size), "%+v", tt)
	}
}

func TestFilePercent(t *testing.T) {
	assert.Equal(t, -1, FilePercent(10, 0))
	assert.Equal(t, 50, FilePercent(50, 100))
	assert.Equal(t, 100, FilePercent(150, 100))
}
