package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/romdl/internal/domain"
	"github.com/mmcdole/romdl/internal/service"
)

const transferBuffer = 64

// FetchListingCmd fetches the listing of the system at index
func FetchListingCmd(svc *service.CatalogService, index, request int) tea.Cmd {
	return func() tea.Msg {
		listing, err := svc.FetchListing(context.Background(), index)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading listing"}
		}
		return ListingLoadedMsg{Request: request, Listing: listing}
	}
}

// StartTransferCmd runs the transfer in the background and streams its
// events back using a continuation pattern
func StartTransferCmd(ctx context.Context, svc *service.TransferService, system domain.System, items []string) tea.Cmd {
	return func() tea.Msg {
		events := make(chan domain.TransferEvent, transferBuffer)
		done := make(chan domain.TransferReport, 1)

		go func() {
			report := svc.Run(ctx, system, items, NewChannelObserver(events))
			done <- report
			close(events)
		}()

		return readTransfer(events, done)
	}
}

// readTransfer reads one event from the channel and attaches the command
// that reads the next one
func readTransfer(events <-chan domain.TransferEvent, done <-chan domain.TransferReport) tea.Msg {
	event, ok := <-events
	if !ok {
		return TransferFinishedMsg{Report: <-done}
	}
	return TransferProgressMsg{
		Event:   event,
		NextCmd: listenToTransferCmd(events, done),
	}
}

// listenToTransferCmd returns a command that reads the next transfer event
func listenToTransferCmd(events <-chan domain.TransferEvent, done <-chan domain.TransferReport) tea.Cmd {
	return func() tea.Msg {
		return readTransfer(events, done)
	}
}

// TickCmd returns a command that sends a tick after a delay
func TickCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// ClearStatusCmd returns a command that clears status id after a delay
func ClearStatusCmd(id int, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return ClearStatusMsg{ID: id}
	})
}
