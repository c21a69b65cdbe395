package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/romdl/internal/domain"
	"github.com/mmcdole/romdl/internal/navigator"
	"github.com/mmcdole/romdl/internal/service"
	"github.com/mmcdole/romdl/internal/tui/styles"
)

// ApplicationState represents the current state of the application
type ApplicationState int

const (
	StateBrowsing ApplicationState = iota
	StateFinding
	StateHelp
)

const (
	// Header (title + blank line) and footer rows around the list
	ChromeHeight = 4

	repeatTick  = 50 * time.Millisecond
	statusDelay = 3 * time.Second
)

// Options configures the model.
type Options struct {
	RepeatDelay    time.Duration
	RepeatInterval time.Duration
	StartSystem    int // Catalog index to open at startup, -1 for none
}

// transferState is what the transfer screen shows
type transferState struct {
	system  domain.System
	items   []string
	current domain.TransferEvent // Last event of the item in flight
	percent int                  // Queue percent
	done    int
	failed  int
}

// Model is the main Bubble Tea model for the application
type Model struct {
	State ApplicationState
	Ready bool

	// Services
	CatalogSvc  *service.CatalogService
	TransferSvc *service.TransferService

	nav       *navigator.Navigator
	installed map[string]domain.InstallRecord

	// UI Components
	spinner  spinner.Model
	fileBar  progress.Model
	queueBar progress.Model
	find     textinput.Model

	// Transfer state
	transfer *transferState
	cancel   context.CancelFunc

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg   string
	StatusIsErr bool
	statusID    int

	startCmd tea.Cmd
	now      func() time.Time
	logger   *slog.Logger
}

// NewModel creates a new application model
func NewModel(catalogSvc *service.CatalogService, transferSvc *service.TransferService, opts Options, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}

	nav := navigator.New(catalogSvc.Systems())
	nav.SetRepeatTiming(opts.RepeatDelay, opts.RepeatInterval)

	s := spinner.New()
	s.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "find"
	ti.CharLimit = 64

	m := Model{
		State:       StateBrowsing,
		CatalogSvc:  catalogSvc,
		TransferSvc: transferSvc,
		nav:         nav,
		spinner:     s,
		fileBar:     progress.New(progress.WithGradient(styles.ProgressFrom, styles.ProgressTo)),
		queueBar:    progress.New(progress.WithGradient(styles.ProgressFrom, styles.ProgressTo)),
		find:        ti,
		now:         time.Now,
		logger:      logger,
	}

	if opts.StartSystem >= 0 {
		nav.Highlight(opts.StartSystem)
		_, m.startCmd = m.dispatch(navigator.Confirm)
	}
	return m
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.startCmd,
		TickCmd(repeatTick),
	)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case TickMsg:
		m.nav.Tick(m.now())
		return m, TickCmd(repeatTick)

	case spinner.TickMsg:
		if !m.nav.Loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ListingLoadedMsg:
		if !m.nav.SetItems(msg.Request, msg.Listing.Items) {
			m.logger.Debug("dropping stale listing", "request", msg.Request)
			return m, nil
		}
		m.installed = msg.Listing.Installed
		return m, nil

	case TransferProgressMsg:
		m.applyTransferEvent(msg.Event)
		return m, msg.NextCmd

	case TransferFinishedMsg:
		return m.finishTransfer(msg.Report)

	case ErrMsg:
		m.logger.Error("command failed", "context", msg.Context, "error", msg.Err)
		return m.setStatus(msg.Error(), true)

	case ClearStatusMsg:
		if msg.ID == m.statusID {
			m.StatusMsg = ""
			m.StatusIsErr = false
		}
		return m, nil
	}

	return m, nil
}

// handleKeyMsg handles keyboard input
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.State {
	case StateHelp:
		m.State = StateBrowsing
		return m, nil

	case StateFinding:
		switch {
		case key.Matches(msg, Keys.Accept), key.Matches(msg, Keys.Escape):
			m.State = StateBrowsing
			m.find.Blur()
			m.updateLayout()
			return m, nil
		}
		var cmd tea.Cmd
		m.find, cmd = m.find.Update(msg)
		if q := m.find.Value(); q != "" {
			m.nav.Find(q)
		}
		return m, cmd
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		if !m.nav.Busy() {
			m.State = StateHelp
		}
		return m, nil

	case key.Matches(msg, Keys.Find):
		if m.nav.Mode() == navigator.GamesMenu && !m.nav.Busy() && m.nav.Len() > 0 {
			m.State = StateFinding
			m.find.Reset()
			m.updateLayout()
			return m, m.find.Focus()
		}
		return m, nil

	case key.Matches(msg, Keys.Up):
		return m.press(navigator.MoveUp)
	case key.Matches(msg, Keys.Down):
		return m.press(navigator.MoveDown)
	case key.Matches(msg, Keys.Left):
		return m.press(navigator.MoveLeft)
	case key.Matches(msg, Keys.Right):
		return m.press(navigator.MoveRight)
	case key.Matches(msg, Keys.Select):
		return m.dispatch(navigator.Confirm)
	case key.Matches(msg, Keys.Back):
		return m.dispatch(navigator.Back)
	case key.Matches(msg, Keys.Download):
		return m.dispatch(navigator.StartDownload)
	}

	return m, nil
}

// press sends a direction followed by its release. Terminals do not report
// key releases, so holding a key relies on the terminal's own key repeat.
func (m Model) press(ev navigator.Event) (tea.Model, tea.Cmd) {
	m.nav.Handle(ev, m.now())
	m.nav.Handle(navigator.DirectionReleased, m.now())
	return m, nil
}

// dispatch feeds an event to the navigator and performs the resulting action
func (m Model) dispatch(ev navigator.Event) (Model, tea.Cmd) {
	act := m.nav.Handle(ev, m.now())

	switch act.Kind {
	case navigator.ActionFetchListing:
		m.installed = nil
		return m, tea.Batch(
			m.spinner.Tick,
			FetchListingCmd(m.CatalogSvc, act.System, act.Request),
		)

	case navigator.ActionStartTransfer:
		system := m.CatalogSvc.Systems()[act.System]
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.transfer = &transferState{
			system:  system,
			items:   act.Items,
			current: domain.TransferEvent{Total: len(act.Items), FilePercent: -1},
		}
		m.StatusMsg = ""
		m.logger.Info("starting transfer", "system", system.Name, "items", len(act.Items))
		return m, StartTransferCmd(ctx, m.TransferSvc, system, act.Items)

	case navigator.ActionCancelTransfer:
		if m.cancel != nil {
			m.cancel()
		}
		m.StatusMsg = "Cancelling..."
		m.StatusIsErr = false
		return m, nil

	case navigator.ActionExit:
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) applyTransferEvent(ev domain.TransferEvent) {
	if m.transfer == nil {
		return
	}
	t := m.transfer
	if ev.Percent > t.percent {
		t.percent = ev.Percent
	}

	switch ev.Kind {
	case domain.EventItemStarted, domain.EventItemProgress, domain.EventItemInstalling:
		t.current = ev
	case domain.EventItemFinished:
		if ev.Outcome == nil {
			return
		}
		switch ev.Outcome.Status {
		case domain.OutcomeCompleted:
			t.done++
			if m.installed != nil {
				m.installed[ev.Item] = domain.InstallRecord{Item: ev.Item}
			}
		case domain.OutcomeFailed:
			t.failed++
		}
	}
}

func (m Model) finishTransfer(report domain.TransferReport) (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.transfer = nil
	m.nav.FinishTransfer()

	completed := report.Count(domain.OutcomeCompleted)
	failed := report.Count(domain.OutcomeFailed)

	switch {
	case report.Cancelled:
		return m.setStatus("Download cancelled", false)
	case failed > 0:
		return m.setStatus(fmt.Sprintf("Downloaded %d of %d (%d failed)", completed, len(report.Outcomes), failed), true)
	default:
		return m.setStatus(fmt.Sprintf("Downloaded %d of %d", completed, len(report.Outcomes)), false)
	}
}

func (m Model) setStatus(text string, isErr bool) (tea.Model, tea.Cmd) {
	m.statusID++
	m.StatusMsg = text
	m.StatusIsErr = isErr
	return m, ClearStatusCmd(m.statusID, statusDelay)
}

func (m *Model) updateLayout() {
	rows := m.Height - ChromeHeight
	if m.State == StateFinding {
		rows--
	}
	m.nav.SetViewport(rows)

	barWidth := m.Width - 12
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < 10 {
		barWidth = 10
	}
	m.fileBar.Width = barWidth
	m.queueBar.Width = barWidth
}
