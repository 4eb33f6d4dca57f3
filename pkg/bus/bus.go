// Package bus is the Supervision Engine's internal event multiplexer
// (spec.md section 4.5 describes the engine as reacting to "whichever of
// these fires first": signals, timers, child exits). Grounded on
// pkg/tui/bus.go's watermill wiring, which devctl used to fan a dashboard
// out from a single in-memory pub/sub; here the same gochannel transport
// fans signal, timer, and reap events into the engine's single select
// loop instead of into a TUI.
package bus

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
)

// Bus is an in-memory publisher/subscriber pair plus the router that
// dispatches subscribed messages to handlers.
type Bus struct {
	Router     *message.Router
	Publisher  message.Publisher
	Subscriber message.Subscriber

	runOnce sync.Once
}

// New creates an unbuffered-safe in-memory bus good for one cohort's
// lifetime. 1024 matches the teacher's dashboard buffer; the engine's
// event volume (one message per signal/timer/exit) is far below it.
func New() (*Bus, error) {
	logger := watermill.NopLogger{}
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1024}, logger)

	r, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "new watermill router")
	}
	return &Bus{
		Router:     r,
		Publisher:  pubsub,
		Subscriber: pubsub,
	}, nil
}

// AddHandler wires a named consumer of topic into the router.
func (b *Bus) AddHandler(name, topic string, handler func(*message.Message) error) {
	b.Router.AddConsumerHandler(name, topic, b.Subscriber, handler)
}

// Run blocks dispatching messages until ctx is cancelled or Close is
// called. Only the first call does anything; later calls return nil.
func (b *Bus) Run(ctx context.Context) error {
	var runErr error
	b.runOnce.Do(func() {
		go func() {
			<-ctx.Done()
			_ = b.Router.Close()
		}()
		runErr = b.Router.Run(ctx)
	})
	return runErr
}

// Close stops the router and the underlying pub/sub immediately.
func (b *Bus) Close() error {
	return b.Router.Close()
}
