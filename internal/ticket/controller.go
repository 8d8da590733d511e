// Package ticket implements the ticket lifecycle for TicketPipe.
//
// The Controller decides, for each inbound feedback event, whether it
// belongs to an existing open ticket or must create a new one. The close
// confirmation flow lives in close.go.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/TicketPipe/internal/feedback"
	"github.com/BTreeMap/TicketPipe/internal/models"
	"github.com/BTreeMap/TicketPipe/internal/platform"
	"github.com/BTreeMap/TicketPipe/internal/registry"
)

// Config holds the channel and guild wiring for the controller.
type Config struct {
	// GuildID is the target community.
	GuildID string
	// ParentCategoryID is the category under which ticket channels are
	// created.
	ParentCategoryID string
	// AdminChannelID receives operator-facing failure notices.
	AdminChannelID string
	// SupportContactID is mentioned in admin notices so an operator is
	// pinged on failures.
	SupportContactID string
}

// Controller resolves feedback events to ticket channels. It is the only
// component that creates ticket channels and requests registry writes for
// open tickets.
type Controller struct {
	registry *registry.Registry
	platform platform.Platform
	cfg      Config

	// locks serializes handling per requester identifier, so concurrent
	// feedback events for the same requester can never create duplicate
	// tickets.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewController creates a Controller with the given collaborators.
func NewController(reg *registry.Registry, plat platform.Platform, cfg Config) *Controller {
	return &Controller{
		registry: reg,
		platform: plat,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
	}
}

// requesterLock returns the mutex serializing work for a requester,
// creating it on first use. Locks are retained for the process lifetime;
// the requester population is small enough that this never matters.
func (c *Controller) requesterLock(requesterID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[requesterID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[requesterID] = lock
	}
	return lock
}

// HandleFeedback processes one feedback-channel message: parse, resolve or
// create the ticket channel, relay content. Re-delivery of the same
// feedback while a ticket is open appends to the existing channel and never
// creates a duplicate.
func (c *Controller) HandleFeedback(ctx context.Context, event *models.FeedbackEvent) error {
	if c.cfg.GuildID != "" && event.GuildID != c.cfg.GuildID {
		// The platform adapter filters by guild already; events from
		// anywhere else are never acted on.
		slog.Debug("Controller ignoring event from foreign guild", "guild", event.GuildID)
		return nil
	}
	parsed, ok := feedback.Parse(event.Body)
	if !ok {
		// Not feedback; silently ignored, not an error.
		slog.Debug("Controller ignoring non-feedback message", "channel", event.ChannelID, "body_length", len(event.Body))
		return nil
	}
	slog.Info("Controller handling feedback", "requester", parsed.RequesterID, "query_length", len(parsed.Query), "attachments", len(event.Attachments))

	lock := c.requesterLock(parsed.RequesterID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := c.registry.Lookup(ctx, parsed.RequesterID)
	if err != nil {
		// Store read failures degrade to the re-creation path rather
		// than dropping the event.
		slog.Warn("Controller lookup failed, treating as absent", "error", err, "requester", parsed.RequesterID)
		existing = nil
	}

	if existing != nil {
		alive, err := c.platform.ChannelExists(ctx, existing.ChannelID)
		if err != nil {
			c.reportAdmin(ctx, fmt.Sprintf("Failed to verify ticket channel for `%s`: %s", parsed.RequesterID, err.Error()))
			return fmt.Errorf("failed to verify ticket channel for %s: %w", parsed.RequesterID, err)
		}
		if alive {
			return c.relay(ctx, existing, parsed.Query, event.Attachments)
		}
		// The channel was deleted out-of-band; drop the stale record and
		// fall through to create a fresh ticket.
		slog.Info("Controller self-healing stale ticket record", "requester", parsed.RequesterID, "channel", existing.ChannelID)
		if err := c.registry.Remove(ctx, parsed.RequesterID); err != nil {
			c.reportAdmin(ctx, fmt.Sprintf("Failed to remove stale ticket record for `%s`: %s", parsed.RequesterID, err.Error()))
			return err
		}
	}

	return c.createTicket(ctx, event.GuildID, parsed, event.Attachments)
}

// relay appends the query and its attachments to an existing ticket
// channel, preserving attachment order.
func (c *Controller) relay(ctx context.Context, record *models.TicketRecord, query string, attachments []models.Attachment) error {
	content := queryMessage(record.UserID, query)
	if err := c.platform.SendMessage(ctx, record.ChannelID, content); err != nil {
		c.reportAdmin(ctx, fmt.Sprintf("Failed to relay query to ticket channel for `%s`: %s", record.RequesterID, err.Error()))
		return err
	}
	if err := c.relayAttachments(ctx, record.ChannelID, record.RequesterID, attachments); err != nil {
		return err
	}
	slog.Info("Controller relayed feedback to existing ticket", "requester", record.RequesterID, "channel", record.ChannelID, "ticket", record.TicketNumber)
	return nil
}

// createTicket resolves the member, allocates a ticket number, creates the
// private channel, and writes the registry record. The registry is only
// written after the channel exists, so a record can never reference a
// channel that was not created.
func (c *Controller) createTicket(ctx context.Context, guildID string, parsed feedback.ParsedFeedback, attachments []models.Attachment) error {
	member, err := c.platform.ResolveMember(ctx, guildID, parsed.RequesterID)
	if err != nil {
		if errors.Is(err, models.ErrMemberNotFound) {
			slog.Warn("Controller requester not found in guild", "requester", parsed.RequesterID)
			c.reportAdmin(ctx, fmt.Sprintf("User with ID `%s` not found in the guild.", parsed.RequesterID))
			return nil
		}
		c.reportAdmin(ctx, fmt.Sprintf("Failed to resolve member `%s`: %s", parsed.RequesterID, err.Error()))
		return fmt.Errorf("failed to resolve member %s: %w", parsed.RequesterID, err)
	}

	number, err := c.registry.NextTicketNumber(ctx)
	if err != nil {
		c.reportAdmin(ctx, fmt.Sprintf("Failed to allocate ticket number for `%s`: %s", parsed.RequesterID, err.Error()))
		return err
	}

	channelName := fmt.Sprintf("ticket-%d", number)
	channelID, err := c.platform.CreateTicketChannel(ctx, guildID, channelName, c.cfg.ParentCategoryID, member)
	if err != nil {
		c.reportAdmin(ctx, fmt.Sprintf("Failed to create ticket channel: %s", err.Error()))
		return fmt.Errorf("failed to create ticket channel for %s: %w", parsed.RequesterID, err)
	}

	record, err := c.registry.Create(ctx, parsed.RequesterID, channelID, member.UserID, number)
	if err != nil {
		c.reportAdmin(ctx, fmt.Sprintf("Failed to persist ticket record for `%s`: %s", parsed.RequesterID, err.Error()))
		return err
	}

	welcome := queryMessage(member.UserID, parsed.Query)
	if err := c.platform.SendCloseableMessage(ctx, channelID, welcome, CloseComponentID(parsed.RequesterID)); err != nil {
		c.reportAdmin(ctx, fmt.Sprintf("Failed to post welcome message in ticket channel for `%s`: %s", parsed.RequesterID, err.Error()))
		return err
	}
	if err := c.relayAttachments(ctx, channelID, parsed.RequesterID, attachments); err != nil {
		return err
	}

	slog.Info("Controller created ticket", "requester", parsed.RequesterID, "channel", channelID, "ticket", record.TicketNumber)
	return nil
}

// relayAttachments sends each attachment as a separate message, in arrival
// order.
func (c *Controller) relayAttachments(ctx context.Context, channelID, requesterID string, attachments []models.Attachment) error {
	for _, a := range attachments {
		if err := c.platform.SendMessage(ctx, channelID, a.URL); err != nil {
			c.reportAdmin(ctx, fmt.Sprintf("Failed to relay attachment %s for `%s`: %s", a.Filename, requesterID, err.Error()))
			return err
		}
	}
	return nil
}

// reportAdmin posts an operator-facing failure notice to the admin channel.
// Reporting failures are logged but never propagate.
func (c *Controller) reportAdmin(ctx context.Context, text string) {
	if c.cfg.AdminChannelID == "" {
		slog.Warn("Controller admin channel not configured, dropping notice", "notice", text)
		return
	}
	if c.cfg.SupportContactID != "" {
		text = fmt.Sprintf("<@%s> %s", c.cfg.SupportContactID, text)
	}
	if err := c.platform.SendMessage(ctx, c.cfg.AdminChannelID, text); err != nil {
		slog.Error("Controller failed to report to admin channel", "error", err, "notice", text)
	}
}

// queryMessage formats the message posted into a ticket channel for a
// received query.
func queryMessage(userID, query string) string {
	return fmt.Sprintf("Hello <@%s>,\nyour query has been received:\n\n**Query:** %s", userID, query)
}
