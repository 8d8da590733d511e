// Package dispatch routes inbound platform events to their handlers.
//
// One loop consumes the event stream; each event is handled in its own
// goroutine so slow external calls for one requester never block events for
// another. Failures are contained at the handler boundary: one bad event is
// logged and reported, never fatal.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/TicketPipe/internal/models"
)

// FeedbackHandler processes feedback-channel messages.
type FeedbackHandler interface {
	HandleFeedback(ctx context.Context, event *models.FeedbackEvent) error
}

// InteractionHandler processes component interactions. It reports whether
// the interaction was owned by the handler.
type InteractionHandler interface {
	HandleInteraction(ctx context.Context, event *models.InteractionEvent) (handled bool, err error)
}

// Dispatcher fans inbound events out to the feedback and interaction
// handlers.
type Dispatcher struct {
	events      <-chan models.Event
	feedback    FeedbackHandler
	interaction InteractionHandler
}

// New creates a Dispatcher reading from events.
func New(events <-chan models.Event, feedback FeedbackHandler, interaction InteractionHandler) *Dispatcher {
	return &Dispatcher{
		events:      events,
		feedback:    feedback,
		interaction: interaction,
	}
}

// Run consumes events until the channel closes or ctx is cancelled, then
// waits for in-flight handlers to finish.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher starting")
	var wg sync.WaitGroup

	defer func() {
		wg.Wait()
		slog.Info("Dispatcher stopped")
	}()

	for {
		select {
		case event, ok := <-d.events:
			if !ok {
				slog.Debug("Dispatcher event channel closed")
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.dispatch(ctx, event)
			}()
		case <-ctx.Done():
			slog.Debug("Dispatcher stopping due to context cancellation")
			return
		}
	}
}

// dispatch routes one event. Panics and errors are contained here so a bad
// event never takes down the loop.
func (d *Dispatcher) dispatch(ctx context.Context, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher recovered from handler panic", "panic", r, "event_type", event.Type)
		}
	}()

	switch event.Type {
	case models.EventTypeFeedback:
		if event.Feedback == nil {
			slog.Warn("Dispatcher dropping feedback event with no payload")
			return
		}
		if err := d.feedback.HandleFeedback(ctx, event.Feedback); err != nil {
			slog.Error("Dispatcher feedback handling failed", "error", err, "channel", event.Feedback.ChannelID)
		}
	case models.EventTypeInteraction:
		if event.Interaction == nil {
			slog.Warn("Dispatcher dropping interaction event with no payload")
			return
		}
		handled, err := d.interaction.HandleInteraction(ctx, event.Interaction)
		if err != nil {
			slog.Error("Dispatcher interaction handling failed", "error", err, "component", event.Interaction.ComponentID)
			return
		}
		if !handled {
			slog.Debug("Dispatcher interaction not owned by any handler", "component", event.Interaction.ComponentID)
		}
	default:
		slog.Warn("Dispatcher dropping event of unknown type", "event_type", event.Type)
	}
}
