// Package platform wraps the chat-platform client for TicketPipe.
//
// This file implements the Discord adapter on top of discordgo.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/BTreeMap/TicketPipe/internal/models"
)

// Constants for Discord adapter configuration
const (
	// DefaultEventBufferSize defines the buffer size for the inbound event channel
	DefaultEventBufferSize = 100
	// DefaultEventTimeout defines the timeout for non-blocking event channel sends
	DefaultEventTimeout = 1 * time.Second
	// memberPageSize is the page size used when fetching guild members
	memberPageSize = 1000
)

// Opts holds configuration options for the Discord adapter.
type Opts struct {
	Token             string // bot token
	GuildID           string // target community
	FeedbackChannelID string // watched feedback channel
}

// Option defines a configuration option for the Discord adapter.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithGuildID sets the target guild.
func WithGuildID(id string) Option {
	return func(o *Opts) {
		o.GuildID = id
	}
}

// WithFeedbackChannelID sets the watched feedback channel.
func WithFeedbackChannelID(id string) Option {
	return func(o *Opts) {
		o.FeedbackChannelID = id
	}
}

// Discord implements Platform on top of a discordgo session.
type Discord struct {
	session           *discordgo.Session
	guildID           string
	feedbackChannelID string
	events            chan models.Event

	// mu guards the stopped flag against the event channel close. Gateway
	// handlers run in their own goroutines, so a late event can reach
	// forward after Stop begins; forwarding holds the read side while Stop
	// takes the write side before closing the channel.
	mu      sync.RWMutex
	stopped bool
}

// NewDiscord creates a Discord adapter, applying any provided options.
// The session is configured with the gateway intents the bridge needs:
// guilds, guild messages, guild members, direct messages, and message
// content.
func NewDiscord(opts ...Option) (*Discord, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewDiscord invoked", "token_set", cfg.Token != "", "guild", cfg.GuildID, "feedback_channel", cfg.FeedbackChannelID)

	if cfg.Token == "" {
		slog.Error("Discord bot token not set")
		return nil, fmt.Errorf("discord bot token not set")
	}
	if cfg.GuildID == "" || cfg.FeedbackChannelID == "" {
		slog.Error("Discord guild or feedback channel not set", "guild_set", cfg.GuildID != "", "channel_set", cfg.FeedbackChannelID != "")
		return nil, fmt.Errorf("discord guild id and feedback channel id are required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		slog.Error("Failed to create Discord session", "error", err)
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &Discord{
		session:           session,
		guildID:           cfg.GuildID,
		feedbackChannelID: cfg.FeedbackChannelID,
		events:            make(chan models.Event, DefaultEventBufferSize),
	}, nil
}

// Start registers event handlers and opens the gateway connection.
func (d *Discord) Start(ctx context.Context) error {
	d.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Discord session ready", "user", r.User.Username, "session", r.SessionID)
	})
	d.session.AddHandler(d.handleMessageCreate)
	d.session.AddHandler(d.handleInteractionCreate)

	if err := d.session.Open(); err != nil {
		slog.Error("Failed to open Discord gateway connection", "error", err)
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	slog.Info("Discord gateway connection opened", "guild", d.guildID)
	return nil
}

// Stop closes the gateway connection and the event channel. Taking the
// write lock waits out any in-flight forward, so the close can never race a
// late handler goroutine's send.
func (d *Discord) Stop() error {
	slog.Info("Discord adapter stopping")
	err := d.session.Close()

	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.events)
	}
	d.mu.Unlock()

	if err != nil {
		slog.Error("Failed to close Discord session", "error", err)
		return err
	}
	return nil
}

// Events returns the inbound event stream.
func (d *Discord) Events() <-chan models.Event {
	return d.events
}

// handleMessageCreate forwards feedback-channel messages as feedback events.
func (d *Discord) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID != d.guildID || m.ChannelID != d.feedbackChannelID {
		return
	}
	if m.Author == nil || m.Author.Bot {
		return
	}

	attachments := make([]models.Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, models.Attachment{URL: a.URL, Filename: a.Filename})
	}

	event := models.Event{
		Type: models.EventTypeFeedback,
		Feedback: &models.FeedbackEvent{
			GuildID:     m.GuildID,
			ChannelID:   m.ChannelID,
			AuthorID:    m.Author.ID,
			Body:        m.Content,
			Attachments: attachments,
			Time:        time.Now().Unix(),
		},
	}
	d.forward(event, "message")
}

// handleInteractionCreate forwards component interactions.
func (d *Discord) handleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	if i.GuildID != d.guildID {
		return
	}

	var userID string
	if i.Member != nil && i.Member.User != nil {
		userID = i.Member.User.ID
	} else if i.User != nil {
		userID = i.User.ID
	}

	event := models.Event{
		Type: models.EventTypeInteraction,
		Interaction: &models.InteractionEvent{
			GuildID:       i.GuildID,
			ChannelID:     i.ChannelID,
			UserID:        userID,
			InteractionID: i.ID,
			ComponentID:   i.MessageComponentData().CustomID,
			ResponseToken: i.Token,
		},
	}
	d.forward(event, "interaction")
}

// forward delivers an event to the channel without blocking the gateway
// handler goroutine. Events arriving after Stop are dropped.
func (d *Discord) forward(event models.Event, kind string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		slog.Debug("Discord adapter stopped, dropping event", "kind", kind)
		return
	}
	select {
	case d.events <- event:
		slog.Debug("Discord event forwarded", "kind", kind)
	case <-time.After(DefaultEventTimeout):
		slog.Warn("Discord event channel blocked, dropping event", "kind", kind, "timeout", DefaultEventTimeout)
	}
}

// ResolveMember fetches the guild membership and matches identifier by
// username, then tag, then global name.
func (d *Discord) ResolveMember(ctx context.Context, guildID, identifier string) (*Member, error) {
	var members []*Member
	after := ""
	for {
		page, err := d.session.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			slog.Error("Discord ResolveMember member fetch failed", "error", err, "guild", guildID)
			return nil, fmt.Errorf("failed to fetch guild members: %w", err)
		}
		for _, gm := range page {
			if gm.User == nil {
				continue
			}
			members = append(members, &Member{
				UserID:     gm.User.ID,
				Username:   gm.User.Username,
				Tag:        gm.User.String(),
				GlobalName: gm.User.GlobalName,
			})
		}
		if len(page) < memberPageSize {
			break
		}
		after = page[len(page)-1].User.ID
	}

	if member := FindMember(members, identifier); member != nil {
		slog.Debug("Discord ResolveMember matched", "identifier", identifier, "user_id", member.UserID)
		return member, nil
	}

	slog.Debug("Discord ResolveMember no match", "identifier", identifier, "guild", guildID, "members_scanned", len(members))
	return nil, models.ErrMemberNotFound
}

// ChannelExists reports whether channelID resolves to a live channel. An
// Unknown Channel response from the API is a confirmed miss, not an error.
func (d *Discord) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	_, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err == nil {
		return true, nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownChannel {
		slog.Debug("Discord ChannelExists confirmed missing", "channel", channelID)
		return false, nil
	}
	slog.Error("Discord ChannelExists fetch failed", "error", err, "channel", channelID)
	return false, fmt.Errorf("failed to fetch channel %s: %w", channelID, err)
}

// CreateTicketChannel creates a private text channel under parentID with
// the three-grant permission layout: everyone denied view, the member
// allowed view+send, the bot allowed view+send+manage.
func (d *Discord) CreateTicketChannel(ctx context.Context, guildID, name, parentID string, member *Member) (string, error) {
	botID := ""
	if d.session.State != nil && d.session.State.User != nil {
		botID = d.session.State.User.ID
	}
	if botID == "" {
		slog.Error("Discord CreateTicketChannel bot identity unavailable")
		return "", fmt.Errorf("bot identity unavailable, session not ready")
	}

	// The everyone role shares the guild's id.
	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    member.UserID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		},
		{
			ID:    botID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionManageChannels,
		},
	}

	channel, err := d.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             parentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Error("Discord CreateTicketChannel failed", "error", err, "name", name, "guild", guildID)
		return "", fmt.Errorf("failed to create ticket channel %s: %w", name, err)
	}

	slog.Info("Discord ticket channel created", "channel", channel.ID, "name", name)
	return channel.ID, nil
}

// SendMessage posts content to a channel.
func (d *Discord) SendMessage(ctx context.Context, channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		slog.Error("Discord SendMessage failed", "error", err, "channel", channelID)
		return fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}
	slog.Debug("Discord message sent", "channel", channelID, "content_length", len(content))
	return nil
}

// SendCloseableMessage posts content with an attached Close Ticket button.
func (d *Discord) SendCloseableMessage(ctx context.Context, channelID, content, closeComponentID string) error {
	_, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Close Ticket",
						Style:    discordgo.DangerButton,
						CustomID: closeComponentID,
					},
				},
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Error("Discord SendCloseableMessage failed", "error", err, "channel", channelID)
		return fmt.Errorf("failed to send closeable message to channel %s: %w", channelID, err)
	}
	slog.Debug("Discord closeable message sent", "channel", channelID)
	return nil
}

// DeleteChannel deletes a channel with an audit log reason.
func (d *Discord) DeleteChannel(ctx context.Context, channelID, auditReason string) error {
	_, err := d.session.ChannelDelete(channelID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(auditReason))
	if err != nil {
		slog.Error("Discord DeleteChannel failed", "error", err, "channel", channelID)
		return fmt.Errorf("failed to delete channel %s: %w", channelID, err)
	}
	slog.Info("Discord channel deleted", "channel", channelID, "reason", auditReason)
	return nil
}

// RespondWithConfirmPrompt replies to the interaction with an ephemeral
// prompt carrying Cancel and Confirm Close buttons. Ephemeral scoping gives
// each triggering user an independent prompt.
func (d *Discord) RespondWithConfirmPrompt(ctx context.Context, interaction *models.InteractionEvent, content, cancelComponentID, confirmComponentID string) error {
	err := d.session.InteractionRespond(&discordgo.Interaction{
		ID:    interaction.InteractionID,
		Token: interaction.ResponseToken,
	}, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "Cancel",
							Style:    discordgo.SecondaryButton,
							CustomID: cancelComponentID,
						},
						discordgo.Button{
							Label:    "Confirm Close",
							Style:    discordgo.DangerButton,
							CustomID: confirmComponentID,
						},
					},
				},
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Error("Discord RespondWithConfirmPrompt failed", "error", err, "interaction", interaction.InteractionID)
		return fmt.Errorf("failed to respond with confirm prompt: %w", err)
	}
	slog.Debug("Discord confirm prompt sent", "interaction", interaction.InteractionID)
	return nil
}

// UpdatePrompt edits the interaction's prompt message to content and strips
// all remaining controls.
func (d *Discord) UpdatePrompt(ctx context.Context, interaction *models.InteractionEvent, content string) error {
	err := d.session.InteractionRespond(&discordgo.Interaction{
		ID:    interaction.InteractionID,
		Token: interaction.ResponseToken,
	}, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Error("Discord UpdatePrompt failed", "error", err, "interaction", interaction.InteractionID)
		return fmt.Errorf("failed to update prompt: %w", err)
	}
	slog.Debug("Discord prompt updated", "interaction", interaction.InteractionID)
	return nil
}
