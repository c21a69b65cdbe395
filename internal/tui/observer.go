package tui

import "github.com/mmcdole/romdl/internal/domain"

// ChannelObserver adapts domain.TransferObserver to a channel for Bubble Tea.
type ChannelObserver struct {
	ch chan<- domain.TransferEvent
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(ch chan<- domain.TransferEvent) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// OnTransfer sends the event to the channel. Progress samples are dropped
// when the channel is full; other events wait for the reader.
func (o *ChannelObserver) OnTransfer(event domain.TransferEvent) {
	if event.Kind != domain.EventItemProgress {
		o.ch <- event
		return
	}
	select {
	case o.ch <- event:
	default: // Non-blocking if channel full
	}
}
