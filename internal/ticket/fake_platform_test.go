package ticket

import (
	"context"
	"fmt"
	"sync"

	"github.com/BTreeMap/TicketPipe/internal/models"
	"github.com/BTreeMap/TicketPipe/internal/platform"
)

// sentPrompt records a confirmation prompt presented to a user.
type sentPrompt struct {
	content   string
	cancelID  string
	confirmID string
}

// fakePlatform is an in-memory Platform for controller and close-flow
// tests.
type fakePlatform struct {
	mu sync.Mutex

	members  []*platform.Member
	channels map[string]bool     // channel id -> live
	messages map[string][]string // channel id -> message contents in order
	closeIDs map[string][]string // channel id -> close component ids sent
	prompts  []sentPrompt
	updates  []string // prompt edits in order
	deleted  []string // deleted channel ids
	reasons  []string // audit reasons for deletions

	createCalls int
	nextChannel int

	createErr error
	deleteErr error
	sendErr   error
	existsErr error
	promptErr error
}

func newFakePlatform(members ...*platform.Member) *fakePlatform {
	return &fakePlatform{
		members:  members,
		channels: make(map[string]bool),
		messages: make(map[string][]string),
		closeIDs: make(map[string][]string),
	}
}

func (f *fakePlatform) ResolveMember(ctx context.Context, guildID, identifier string) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m := platform.FindMember(f.members, identifier); m != nil {
		return m, nil
	}
	return nil, models.ErrMemberNotFound
}

func (f *fakePlatform) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.channels[channelID], nil
}

func (f *fakePlatform) CreateTicketChannel(ctx context.Context, guildID, name, parentID string, member *platform.Member) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createCalls++
	f.nextChannel++
	channelID := fmt.Sprintf("chan-%d", f.nextChannel)
	f.channels[channelID] = true
	return channelID, nil
}

func (f *fakePlatform) SendMessage(ctx context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages[channelID] = append(f.messages[channelID], content)
	return nil
}

func (f *fakePlatform) SendCloseableMessage(ctx context.Context, channelID, content, closeComponentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages[channelID] = append(f.messages[channelID], content)
	f.closeIDs[channelID] = append(f.closeIDs[channelID], closeComponentID)
	return nil
}

func (f *fakePlatform) DeleteChannel(ctx context.Context, channelID, auditReason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.channels, channelID)
	f.deleted = append(f.deleted, channelID)
	f.reasons = append(f.reasons, auditReason)
	return nil
}

func (f *fakePlatform) RespondWithConfirmPrompt(ctx context.Context, interaction *models.InteractionEvent, content, cancelComponentID, confirmComponentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promptErr != nil {
		return f.promptErr
	}
	f.prompts = append(f.prompts, sentPrompt{content: content, cancelID: cancelComponentID, confirmID: confirmComponentID})
	return nil
}

func (f *fakePlatform) UpdatePrompt(ctx context.Context, interaction *models.InteractionEvent, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, content)
	return nil
}

func (f *fakePlatform) Events() <-chan models.Event { return nil }

func (f *fakePlatform) Start(ctx context.Context) error { return nil }

func (f *fakePlatform) Stop() error { return nil }

// channelMessages returns a copy of the messages sent to a channel.
func (f *fakePlatform) channelMessages(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages[channelID]))
	copy(out, f.messages[channelID])
	return out
}

// lastPrompt returns the most recent confirmation prompt.
func (f *fakePlatform) lastPrompt() (sentPrompt, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return sentPrompt{}, false
	}
	return f.prompts[len(f.prompts)-1], true
}
