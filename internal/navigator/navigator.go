// Package navigator implements the selection state machine that drives
// browsing: a system list, then the item list of the chosen system with
// multi-select, alphabetic jumps and held-direction auto-repeat.
package navigator

import (
	"sort"
	"time"

	"github.com/mmcdole/romdl/internal/domain"
)

// Mode is the list currently in view.
type Mode int

const (
	SystemsMenu Mode = iota
	GamesMenu
)

func (m Mode) String() string {
	if m == GamesMenu {
		return "games"
	}
	return "systems"
}

// Event is a discrete input event, independent of the physical device.
type Event int

const (
	MoveUp Event = iota
	MoveDown
	MoveLeft
	MoveRight
	Confirm
	Back
	StartDownload
	DirectionReleased
)

// ActionKind tells the caller what a transition requires of it.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionFetchListing
	ActionStartTransfer
	ActionCancelTransfer
	ActionExit
)

// Action is returned by Handle. System is set for ActionFetchListing and
// ActionStartTransfer, Items for ActionStartTransfer. Request identifies a
// listing fetch and must be passed back to SetItems.
type Action struct {
	Kind    ActionKind
	System  int
	Request int
	Items   []string
}

// Default auto-repeat timing for a held direction.
const (
	DefaultRepeatDelay    = 300 * time.Millisecond
	DefaultRepeatInterval = 150 * time.Millisecond
)

// Navigator holds the browsing session state. It is not safe for concurrent
// use; the event loop owns it.
type Navigator struct {
	systems []domain.System
	items   []string

	mode        Mode
	highlighted int
	selected    map[int]struct{}
	active      int // index of the system whose items are in view, -1 if none

	// Scroll window
	offset int
	rows   int

	loading bool
	busy    bool
	request int // id of the latest listing fetch

	repeat repeater
}

// New creates a navigator over the given systems, starting in SystemsMenu.
func New(systems []domain.System) *Navigator {
	return &Navigator{
		systems:  systems,
		selected: make(map[int]struct{}),
		active:   -1,
		repeat:   repeater{delay: DefaultRepeatDelay, interval: DefaultRepeatInterval},
	}
}

// SetRepeatTiming overrides the auto-repeat delay and interval.
func (n *Navigator) SetRepeatTiming(delay, interval time.Duration) {
	if delay > 0 {
		n.repeat.delay = delay
	}
	if interval > 0 {
		n.repeat.interval = interval
	}
}

// Handle feeds one input event to the state machine.
func (n *Navigator) Handle(ev Event, now time.Time) Action {
	if n.busy {
		if ev == Back {
			return Action{Kind: ActionCancelTransfer}
		}
		return Action{}
	}

	switch ev {
	case MoveUp, MoveDown:
		n.press(ev, now)
	case MoveLeft:
		if n.mode == GamesMenu {
			n.JumpBackward()
		}
	case MoveRight:
		if n.mode == GamesMenu {
			n.JumpForward()
		}
	case DirectionReleased:
		n.repeat.release()
	case Confirm:
		return n.confirm()
	case Back:
		return n.back()
	case StartDownload:
		return n.startDownload()
	}
	return Action{}
}

// press steps once and, in GamesMenu, arms the repeat timer.
func (n *Navigator) press(ev Event, now time.Time) {
	if n.repeat.held && n.repeat.dir == ev {
		return // still held; Tick drives further steps
	}
	n.step(ev)
	if n.mode == GamesMenu {
		n.repeat.arm(ev, now)
	} else {
		n.repeat.release()
	}
}

// Tick advances held-direction auto-repeat. It returns true if the
// highlight moved.
//
// Repeats only happen for input sources that report key releases, such as
// gamepads, and so hold a direction between press and DirectionReleased.
// The terminal UI releases every press immediately and relies on the
// terminal's own key repeat, so there Tick never steps.
func (n *Navigator) Tick(now time.Time) bool {
	if n.busy || n.mode != GamesMenu {
		return false
	}
	steps := n.repeat.due(now)
	for i := 0; i < steps; i++ {
		n.step(n.repeat.dir)
	}
	return steps > 0
}

func (n *Navigator) step(ev Event) {
	if ev == MoveUp {
		n.MovePrev()
	} else {
		n.MoveNext()
	}
}

// MoveNext moves the highlight down, wrapping at the end.
func (n *Navigator) MoveNext() {
	count := n.Len()
	if count == 0 {
		return
	}
	n.highlighted = (n.highlighted + 1) % count
	n.ensureVisible()
}

// MovePrev moves the highlight up, wrapping at the start.
func (n *Navigator) MovePrev() {
	count := n.Len()
	if count == 0 {
		return
	}
	n.highlighted = (n.highlighted - 1 + count) % count
	n.ensureVisible()
}

func (n *Navigator) confirm() Action {
	switch n.mode {
	case SystemsMenu:
		if len(n.systems) == 0 {
			return Action{}
		}
		n.active = n.highlighted
		n.enterGames()
		return Action{Kind: ActionFetchListing, System: n.active, Request: n.request}

	case GamesMenu:
		if len(n.items) == 0 {
			return Action{}
		}
		n.Toggle(n.highlighted)
	}
	return Action{}
}

// enterGames switches to GamesMenu with an empty, loading item list.
func (n *Navigator) enterGames() {
	n.mode = GamesMenu
	n.items = nil
	n.selected = make(map[int]struct{})
	n.highlighted = 0
	n.offset = 0
	n.loading = true
	n.request++
	n.repeat.release()
}

// Toggle flips membership of index i in the selection set.
func (n *Navigator) Toggle(i int) {
	if n.mode != GamesMenu || i < 0 || i >= len(n.items) {
		return
	}
	if _, ok := n.selected[i]; ok {
		delete(n.selected, i)
	} else {
		n.selected[i] = struct{}{}
	}
}

func (n *Navigator) back() Action {
	if n.mode == SystemsMenu {
		return Action{Kind: ActionExit}
	}
	n.enterSystems()
	return Action{}
}

// enterSystems returns to SystemsMenu with the highlight reset.
func (n *Navigator) enterSystems() {
	n.mode = SystemsMenu
	n.highlighted = 0
	n.offset = 0
	n.loading = false
	n.selected = make(map[int]struct{})
	n.repeat.release()
}

func (n *Navigator) startDownload() Action {
	if n.mode != GamesMenu || len(n.selected) == 0 {
		return Action{}
	}
	n.busy = true
	n.repeat.release()
	return Action{
		Kind:   ActionStartTransfer,
		System: n.active,
		Items:  n.SelectedItems(),
	}
}

// SetItems installs the listing fetched for request. Results of a fetch
// that is no longer current are ignored; it returns false in that case.
func (n *Navigator) SetItems(request int, items []string) bool {
	if n.mode != GamesMenu || !n.loading || request != n.request {
		return false
	}
	n.items = items
	n.loading = false
	n.highlighted = 0
	n.offset = 0
	n.selected = make(map[int]struct{})
	return true
}

// FinishTransfer ends a transfer started by StartDownload and returns to
// SystemsMenu.
func (n *Navigator) FinishTransfer() {
	n.busy = false
	n.enterSystems()
}

// Mode returns the current mode.
func (n *Navigator) Mode() Mode { return n.mode }

// Highlighted returns the highlighted index into the list in view.
func (n *Navigator) Highlighted() int { return n.highlighted }

// Loading reports whether GamesMenu is waiting for its listing.
func (n *Navigator) Loading() bool { return n.loading }

// Busy reports whether a transfer is running.
func (n *Navigator) Busy() bool { return n.busy }

// Systems returns the system list.
func (n *Navigator) Systems() []domain.System { return n.systems }

// Items returns the item list of the active system.
func (n *Navigator) Items() []string { return n.items }

// ActiveSystem returns the system whose items are in view.
func (n *Navigator) ActiveSystem() (domain.System, int, bool) {
	if n.active < 0 || n.active >= len(n.systems) {
		return domain.System{}, -1, false
	}
	return n.systems[n.active], n.active, true
}

// Len returns the length of the list in view.
func (n *Navigator) Len() int {
	if n.mode == GamesMenu {
		return len(n.items)
	}
	return len(n.systems)
}

// Label returns the display text of row i of the list in view.
func (n *Navigator) Label(i int) string {
	if n.mode == GamesMenu {
		return n.items[i]
	}
	return n.systems[i].Name
}

// IsSelected reports whether item i is selected.
func (n *Navigator) IsSelected(i int) bool {
	_, ok := n.selected[i]
	return ok
}

// SelectedIndices returns the selected indices in ascending order.
func (n *Navigator) SelectedIndices() []int {
	indices := make([]int, 0, len(n.selected))
	for i := range n.selected {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// SelectedItems returns the selected item names in list order, regardless
// of the order they were toggled in.
func (n *Navigator) SelectedItems() []string {
	indices := n.SelectedIndices()
	names := make([]string, len(indices))
	for i, idx := range indices {
		names[i] = n.items[idx]
	}
	return names
}
