package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/BTreeMap/TicketPipe/internal/models"
	"github.com/BTreeMap/TicketPipe/internal/platform"
	"github.com/BTreeMap/TicketPipe/internal/registry"
)

// Component id prefixes for the close confirmation controls. The close
// control carries the canonical requester identifier captured at ticket
// creation, so closing never re-derives the registry key from the closing
// user's profile. Confirm and cancel controls carry the id of their pending
// confirmation context.
const (
	closeComponentPrefix   = "ticket-close|"
	confirmComponentPrefix = "ticket-close-confirm|"
	cancelComponentPrefix  = "ticket-close-cancel|"
)

// Messages shown on the confirmation prompt.
const (
	confirmPromptText   = "Are you sure you want to close this ticket? The channel will be deleted."
	closeCancelledText  = "Ticket close cancelled."
	closeCompletedText  = "Ticket closed. The channel has been deleted."
	promptExpiredText   = "This close request is no longer active."
	closeDeleteAuditLog = "Ticket closed via close confirmation"
)

// CloseComponentID builds the component id for a ticket's Close Ticket
// control, embedding the canonical requester identifier.
func CloseComponentID(requesterID string) string {
	return closeComponentPrefix + requesterID
}

// pendingClose is the ephemeral state attached to one confirmation prompt.
// A fresh context is created per trigger; concurrent triggers from
// different users each get their own.
type pendingClose struct {
	requesterID string
	channelID   string
	userID      string
	state       models.ConfirmationState
}

// CloseFlow drives the two-step close confirmation state machine that
// gates channel deletion and registry cleanup.
type CloseFlow struct {
	registry       *registry.Registry
	platform       platform.Platform
	adminChannelID string

	mu      sync.Mutex
	pending map[string]*pendingClose
}

// NewCloseFlow creates a CloseFlow with the given collaborators.
func NewCloseFlow(reg *registry.Registry, plat platform.Platform, adminChannelID string) *CloseFlow {
	return &CloseFlow{
		registry:       reg,
		platform:       plat,
		adminChannelID: adminChannelID,
		pending:        make(map[string]*pendingClose),
	}
}

// PendingCount reports the number of open confirmation prompts.
func (f *CloseFlow) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// HandleInteraction routes a component interaction through the close
// confirmation state machine. Component ids this machine does not own are
// passed through with handled=false.
func (f *CloseFlow) HandleInteraction(ctx context.Context, event *models.InteractionEvent) (bool, error) {
	switch {
	case strings.HasPrefix(event.ComponentID, closeComponentPrefix):
		requesterID := strings.TrimPrefix(event.ComponentID, closeComponentPrefix)
		return true, f.beginClose(ctx, event, requesterID)
	case strings.HasPrefix(event.ComponentID, cancelComponentPrefix):
		confirmationID := strings.TrimPrefix(event.ComponentID, cancelComponentPrefix)
		return true, f.cancelClose(ctx, event, confirmationID)
	case strings.HasPrefix(event.ComponentID, confirmComponentPrefix):
		confirmationID := strings.TrimPrefix(event.ComponentID, confirmComponentPrefix)
		return true, f.confirmClose(ctx, event, confirmationID)
	default:
		return false, nil
	}
}

// beginClose transitions Idle -> Pending: a fresh confirmation context is
// created and the triggering user gets a prompt with Cancel and Confirm
// Close controls.
func (f *CloseFlow) beginClose(ctx context.Context, event *models.InteractionEvent, requesterID string) error {
	confirmationID := uuid.NewString()

	f.mu.Lock()
	f.pending[confirmationID] = &pendingClose{
		requesterID: requesterID,
		channelID:   event.ChannelID,
		userID:      event.UserID,
		state:       models.ConfirmationPending,
	}
	f.mu.Unlock()
	slog.Debug("CloseFlow confirmation pending", "confirmation", confirmationID, "requester", requesterID, "channel", event.ChannelID)

	err := f.platform.RespondWithConfirmPrompt(ctx, event, confirmPromptText,
		cancelComponentPrefix+confirmationID,
		confirmComponentPrefix+confirmationID)
	if err != nil {
		// The prompt never reached the user; drop the context so it
		// cannot be confirmed later.
		f.mu.Lock()
		delete(f.pending, confirmationID)
		f.mu.Unlock()
		f.reportFailure(ctx, event, fmt.Sprintf("Failed to present close confirmation: %s", err.Error()))
		return err
	}
	return nil
}

// cancelClose transitions Pending -> Idle: the prompt becomes a cancelled
// acknowledgment with no remaining controls, and nothing else is mutated.
func (f *CloseFlow) cancelClose(ctx context.Context, event *models.InteractionEvent, confirmationID string) error {
	f.mu.Lock()
	p, ok := f.pending[confirmationID]
	if ok {
		p.state = models.ConfirmationCancelled
		delete(f.pending, confirmationID)
	}
	f.mu.Unlock()

	if !ok {
		slog.Debug("CloseFlow cancel on unknown confirmation", "confirmation", confirmationID)
	}
	if err := f.platform.UpdatePrompt(ctx, event, closeCancelledText); err != nil {
		f.reportFailure(ctx, event, fmt.Sprintf("Failed to acknowledge close cancellation: %s", err.Error()))
		return err
	}
	slog.Info("CloseFlow close cancelled", "confirmation", confirmationID, "channel", event.ChannelID)
	return nil
}

// confirmClose transitions Pending -> Closed: the channel is deleted with
// an audit reason, then the registry record is removed under the requester
// identifier captured at creation. If deletion fails the channel is assumed
// to still exist and the record is kept.
func (f *CloseFlow) confirmClose(ctx context.Context, event *models.InteractionEvent, confirmationID string) error {
	f.mu.Lock()
	p, ok := f.pending[confirmationID]
	if ok {
		p.state = models.ConfirmationConfirmed
		delete(f.pending, confirmationID)
	}
	f.mu.Unlock()

	if !ok {
		// Already resolved (or the process restarted); nothing to close
		// twice.
		slog.Debug("CloseFlow confirm on unknown confirmation", "confirmation", confirmationID)
		if err := f.platform.UpdatePrompt(ctx, event, promptExpiredText); err != nil {
			slog.Warn("CloseFlow failed to expire stale prompt", "error", err, "confirmation", confirmationID)
		}
		return nil
	}

	if err := f.platform.DeleteChannel(ctx, p.channelID, closeDeleteAuditLog); err != nil {
		// Assume the channel still exists and keep the registry record,
		// so it never points into the void.
		f.reportFailure(ctx, event, fmt.Sprintf("Failed to delete ticket channel: %s", err.Error()))
		return fmt.Errorf("failed to delete ticket channel %s: %w", p.channelID, err)
	}

	if err := f.registry.Remove(ctx, p.requesterID); err != nil {
		f.reportFailure(ctx, event, fmt.Sprintf("Ticket channel deleted but record removal failed for `%s`: %s", p.requesterID, err.Error()))
		return err
	}

	// The prompt lived in the deleted channel, so this edit is best
	// effort.
	if err := f.platform.UpdatePrompt(ctx, event, closeCompletedText); err != nil {
		slog.Debug("CloseFlow could not update prompt after close", "error", err, "confirmation", confirmationID)
	}

	slog.Info("CloseFlow ticket closed", "confirmation", confirmationID, "requester", p.requesterID, "channel", p.channelID)
	return nil
}

// reportFailure surfaces a close-flow failure both to the admin channel and
// back to the interacting user.
func (f *CloseFlow) reportFailure(ctx context.Context, event *models.InteractionEvent, text string) {
	if f.adminChannelID != "" {
		if err := f.platform.SendMessage(ctx, f.adminChannelID, text); err != nil {
			slog.Error("CloseFlow failed to report to admin channel", "error", err, "notice", text)
		}
	}
	if err := f.platform.UpdatePrompt(ctx, event, text); err != nil {
		slog.Debug("CloseFlow could not surface failure to user", "error", err)
	}
}
