package ports

import "context"

// SignalFeed defines the interface for receiving raw inbound messages from
// the signal producer's transport.
type SignalFeed interface {
	// Subscribe starts the feed and delivers each raw message to handler,
	// in arrival order, from a single goroutine. errHandler receives
	// transport errors (reconnects are the feed's own concern).
	// Returns channels to control the stream: doneCh closes when the feed
	// terminates, closing stopCh asks it to stop.
	Subscribe(ctx context.Context, handler func(raw []byte), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
