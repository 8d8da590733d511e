// Package platform wraps the chat-platform client for TicketPipe.
//
// It defines the pluggable collaborator interface consumed by the ticket
// lifecycle modules, plus a Discord implementation. Everything here is thin
// I/O: decisions about what to send and where live in the ticket package.
package platform

import (
	"context"

	"github.com/BTreeMap/TicketPipe/internal/models"
)

// Member is a resolved guild member.
type Member struct {
	// UserID is the stable platform user id.
	UserID string
	// Username is the account name.
	Username string
	// Tag is the legacy username#discriminator form.
	Tag string
	// GlobalName is the display name shown across guilds.
	GlobalName string
}

// Platform defines the chat-platform operations the ticket lifecycle needs.
// Implementations must be safe for concurrent use.
type Platform interface {
	// ResolveMember finds a guild member whose identifier matches by
	// username, then tag, then global name, in that order. Returns
	// models.ErrMemberNotFound when nothing matches.
	ResolveMember(ctx context.Context, guildID, identifier string) (*Member, error)

	// ChannelExists reports whether channelID still resolves to a live
	// channel. A confirmed-missing channel returns (false, nil);
	// transient failures return an error.
	ChannelExists(ctx context.Context, channelID string) (bool, error)

	// CreateTicketChannel creates a private text channel under parentID
	// with exactly three permission grants: deny view for the everyone
	// role, allow view+send for member, allow view+send+manage for the
	// bot itself. Returns the new channel id.
	CreateTicketChannel(ctx context.Context, guildID, name, parentID string, member *Member) (string, error)

	// SendMessage posts content to a channel.
	SendMessage(ctx context.Context, channelID, content string) error

	// SendCloseableMessage posts content with an attached "Close Ticket"
	// control carrying the given component id.
	SendCloseableMessage(ctx context.Context, channelID, content, closeComponentID string) error

	// DeleteChannel deletes a channel, recording auditReason in the
	// platform's audit log.
	DeleteChannel(ctx context.Context, channelID, auditReason string) error

	// RespondWithConfirmPrompt replies to an interaction with a prompt
	// carrying Cancel and Confirm Close controls. The prompt is scoped to
	// the interacting user, so concurrent triggers get independent
	// prompts.
	RespondWithConfirmPrompt(ctx context.Context, interaction *models.InteractionEvent, content, cancelComponentID, confirmComponentID string) error

	// UpdatePrompt edits the interaction's prompt to content with no
	// remaining controls.
	UpdatePrompt(ctx context.Context, interaction *models.InteractionEvent, content string) error

	// Events returns the inbound event stream (feedback messages and
	// component interactions), scoped to the configured guild and
	// feedback channel.
	Events() <-chan models.Event

	// Start begins event delivery.
	Start(ctx context.Context) error

	// Stop ends event delivery and releases the connection.
	Stop() error
}

// FindMember applies the deterministic identifier match order across a
// member list: a username match anywhere beats a tag match, which beats a
// global-name match. Within each pass the first member wins. Returns nil
// when nothing matches.
func FindMember(members []*Member, identifier string) *Member {
	for _, m := range members {
		if m.Username == identifier {
			return m
		}
	}
	for _, m := range members {
		if m.Tag == identifier {
			return m
		}
	}
	for _, m := range members {
		if m.GlobalName != "" && m.GlobalName == identifier {
			return m
		}
	}
	return nil
}
