package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/romdl/internal/domain"
)

// Message types for the TUI

// ListingLoadedMsg carries the listing fetched for a navigator request
type ListingLoadedMsg struct {
	Request int
	Listing domain.Listing
}

// TransferProgressMsg is sent for each event of a running transfer
type TransferProgressMsg struct {
	Event   domain.TransferEvent
	NextCmd tea.Cmd // Continuation command for streaming
}

// TransferFinishedMsg signals that the transfer queue has ended
type TransferFinishedMsg struct {
	Report domain.TransferReport
}

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// TickMsg drives the held-direction auto-repeat
type TickMsg struct{}

// ClearStatusMsg clears the status bar message if it is still the one shown
type ClearStatusMsg struct {
	ID int
}
