// Package models defines the core data structures for TicketPipe.
//
// It includes the persisted ticket record, the inbound event union, and
// shared error variables used across modules.
package models

import (
	"errors"
	"time"
)

// EventType distinguishes the kinds of inbound platform events.
type EventType string

const (
	// EventTypeFeedback is a message posted in the watched feedback channel.
	EventTypeFeedback EventType = "feedback"
	// EventTypeInteraction is a component interaction (button press).
	EventTypeInteraction EventType = "interaction"
)

// Error variables for better error handling and testability
var (
	// ErrMemberNotFound indicates a requester identifier resolved to no guild member.
	ErrMemberNotFound = errors.New("member not found in guild")
	// ErrEmptyRequester indicates a registry call with an empty requester identifier.
	ErrEmptyRequester = errors.New("requester identifier cannot be empty")
)

// TicketRecord is the persisted mapping from a requester identifier to the
// private ticket channel created for them. Exactly one record exists per
// requester while their ticket is open.
type TicketRecord struct {
	// RequesterID is the canonical human-facing identifier used as the
	// registry key. It is captured at creation and reused verbatim for
	// every later lookup and removal.
	RequesterID string `json:"requester_id"`
	// ChannelID is the created private ticket channel.
	ChannelID string `json:"channel_id"`
	// UserID is the stable platform user id, used for mention and
	// permission targeting (distinct from RequesterID).
	UserID string `json:"user_id"`
	// TicketNumber is the sequence value consumed at creation.
	TicketNumber int64 `json:"ticket_number"`
	// CreatedAt records when the ticket channel was created.
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is a file attached to a feedback message, relayed to the
// ticket channel in arrival order.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// FeedbackEvent is a message-created event from the feedback channel.
type FeedbackEvent struct {
	GuildID     string       `json:"guild_id"`
	ChannelID   string       `json:"channel_id"`
	AuthorID    string       `json:"author_id"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Time        int64        `json:"time"`
}

// InteractionEvent is a component interaction routed to the close
// confirmation flow.
type InteractionEvent struct {
	GuildID       string `json:"guild_id"`
	ChannelID     string `json:"channel_id"`
	UserID        string `json:"user_id"`
	InteractionID string `json:"interaction_id"`
	// ComponentID is the custom id of the pressed control.
	ComponentID string `json:"component_id"`
	// ResponseToken addresses the interaction for replies and prompt edits.
	ResponseToken string `json:"response_token"`
}

// Event is the tagged union of inbound platform events. Exactly one of
// Feedback or Interaction is non-nil, matching Type.
type Event struct {
	Type        EventType
	Feedback    *FeedbackEvent
	Interaction *InteractionEvent
}

// ConfirmationState represents the ephemeral state of a close confirmation
// prompt. It exists only for the lifetime of the prompt.
type ConfirmationState string

const (
	// ConfirmationPending means the prompt is displayed and undecided.
	ConfirmationPending ConfirmationState = "pending"
	// ConfirmationConfirmed means the close was confirmed (terminal).
	ConfirmationConfirmed ConfirmationState = "confirmed"
	// ConfirmationCancelled means the close was cancelled.
	ConfirmationCancelled ConfirmationState = "cancelled"
)
