package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/TicketPipe/internal/models"
	"github.com/BTreeMap/TicketPipe/internal/platform"
	"github.com/BTreeMap/TicketPipe/internal/registry"
	"github.com/BTreeMap/TicketPipe/internal/store"
)

var testConfig = Config{
	GuildID:          "guild-1",
	ParentCategoryID: "category-1",
	AdminChannelID:   "admin-1",
}

func aliceMember() *platform.Member {
	return &platform.Member{UserID: "user-alice", Username: "alice", Tag: "alice#0", GlobalName: "Alice"}
}

func feedbackMessage(requester, query string) *models.FeedbackEvent {
	return &models.FeedbackEvent{
		GuildID:   "guild-1",
		ChannelID: "feedback-1",
		AuthorID:  "author-1",
		Body:      fmt.Sprintf("**discordID:** `%s` **Query:** `%s`", requester, query),
	}
}

func TestHandleFeedbackCreatesTicket(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewInMemoryStore())
	fake := newFakePlatform(aliceMember())
	ctrl := NewController(reg, fake, testConfig)

	if err := ctrl.HandleFeedback(ctx, feedbackMessage("alice", "printer is broken")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.createCalls != 1 {
		t.Errorf("channel creations = %d, want 1", fake.createCalls)
	}
	record, err := reg.Lookup(ctx, "alice")
	if err != nil || record == nil {
		t.Fatalf("expected registry record for alice, got (%+v, %v)", record, err)
	}
	if record.TicketNumber != 1 {
		t.Errorf("ticket number = %d, want 1", record.TicketNumber)
	}
	if record.UserID != "user-alice" {
		t.Errorf("record user id = %q, want user-alice", record.UserID)
	}

	messages := fake.channelMessages(record.ChannelID)
	if len(messages) != 1 {
		t.Fatalf("messages in ticket channel = %d, want 1", len(messages))
	}
	if !strings.Contains(messages[0], "your query has been received") || !strings.Contains(messages[0], "printer is broken") {
		t.Errorf("welcome message missing expected content: %q", messages[0])
	}
	if !strings.Contains(messages[0], "<@user-alice>") {
		t.Errorf("welcome message missing requester mention: %q", messages[0])
	}

	closeIDs := fake.closeIDs[record.ChannelID]
	if len(closeIDs) != 1 || closeIDs[0] != CloseComponentID("alice") {
		t.Errorf("close control ids = %v, want [%s]", closeIDs, CloseComponentID("alice"))
	}

	// The counter advanced exactly once.
	next, err := reg.NextTicketNumber(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 2 {
		t.Errorf("next ticket number = %d, want 2", next)
	}
}

func TestHandleFeedbackRepeatAppendsToExistingTicket(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewInMemoryStore())
	fake := newFakePlatform(aliceMember())
	ctrl := NewController(reg, fake, testConfig)

	if err := ctrl.HandleFeedback(ctx, feedbackMessage("alice", "printer is broken")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ctrl.HandleFeedback(ctx, feedbackMessage("alice", "printer is broken")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.createCalls != 1 {
		t.Errorf("channel creations = %d, want 1 (re-delivery must append, not recreate)", fake.createCalls)
	}
	record, _ := reg.Lookup(ctx, "alice")
	messages := fake.channelMessages(record.ChannelID)
	if len(messages) != 2 {
		t.Errorf("messages in ticket channel = %d, want 2", len(messages))
	}

	// Counter unchanged by the repeat.
	next, _ := reg.NextTicketNumber(ctx)
	if next != 2 {
		t.Errorf("next ticket number = %d, want 2", next)
	}
}

func TestHandleFeedbackUnresolvableRequester(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewInMemoryStore())
	fake := newFakePlatform(aliceMember())
	ctrl := NewController(reg, fake, testConfig)

	if err := ctrl.HandleFeedback(ctx, feedbackMessage("ghost123", "anyone there?")); err != nil {
		t.Fatalf("not-found must be a handled condition, got error: %v", err)
	}

	if fake.createCalls != 0 {
		t.Errorf("channel creations = %d, want 0", fake.createCalls)
	}
	record, _ := reg.Lookup(ctx, "ghost123")
	if record != nil {
		t.Errorf("expected no registry write, got %+v", record)
	}
	adminNotices := fake.channelMessages("admin-1")
	if len(adminNotices) != 1 || !strings.Contains(adminNotices[0], "ghost123") {
		t.Errorf("expected one admin notice containing ghost123, got %v", adminNotices)
	}
}

func TestHandleFeedbackParseMissIgnored(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewInMemoryStore())
	fake := newFakePlatform(aliceMember())
	ctrl := NewController(reg, fake, testConfig)

	event := &models.FeedbackEvent{GuildID: "guild-1", ChannelID: "feedback-1", Body: "just chatting"}
	if err := ctrl.HandleFeedback(ctx, event); err != nil {
		t.Fatalf("parse miss must not error: %v", err)
	}
	if fake.createCalls != 0 {
		t.Errorf("channel creations = %d, want 0", fake.createCalls)
	}
	if notices := fake.channelMessages("admin-1"); len(notices) != 0 {
		t.Errorf("parse miss must not notify admin, got %v", notices)
	}
}

func TestHandleFeedbackForeignGuildIgnored(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewInMemoryStore())
	fake := newFakePlatform(aliceMember())
	ctrl := NewController(reg, fake, testConfig)

	event := feedbackMessage("alice", "printer is broken")
	event.GuildID = "guild-2"
	if err := ctrl.HandleFeedback(ctx, event); err != nil {
		t.Fatalf("foreign-guild event must not error: %v", err)
	}

	if fake.createCalls != 0 {
		t.Errorf("channel creations = %d, want 0 for foreign guild", fake.createCalls)
	}
	record, _ := reg.Lookup(ctx, "alice")
	if record != nil {
		t.Errorf("expected no registry write for foreign guild, got %+v", record)
	}
	if notices := fake.channelMessages("admin-1"); len(notices) != 0 {
		t.Errorf("foreign-guild event must not notify admin, got %v", notices)
	}
}

func TestHandleFeedbackConcurrentEventsCreateOneTicket(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewInMemoryStore())
	fake := newFakePlatform(aliceMember())
	ctrl := NewController(reg, fake, testConfig)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ctrl.HandleFeedback(ctx, feedbackMessage("alice", "printer is broken")); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if fake.createCalls != 1 {
		t.Errorf("channel creations = %d, want exactly 1 under concurrent delivery", fake.createCalls)
	}
	record, _ := reg.Lookup(ctx, "alice")
	if record == nil {
		t.Fatal("expected registry record for alice")
	}
	if got := len(fake.channelMessages(record.ChannelID)); got != workers {
		t.Errorf("messages in ticket channel = %d, want %d", got, workers)
	}
}

func TestHandleFeedbackSelfHealsDeletedChannel(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewInMemoryStore())
	fake := newFakePlatform(aliceMember())
	ctrl := NewController(reg, fake, testConfig)

	if err := ctrl.HandleFeedback(ctx, feedbackMessage("alice", "printer is broken")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, _ := reg.Lookup(ctx, "alice")

	// Delete the ticket channel out-of-band.
	fake.mu.Lock()
	delete(fake.channels, first.ChannelID)
	fake.mu.Unlock()

	if err := ctrl.HandleFeedback(ctx, feedbackMessage("alice", "still broken")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, _ := reg.Lookup(ctx, "alice")
	if second == nil {
		t.Fatal("expected a fresh record after self-heal")
	}
	if second.ChannelID == first.ChannelID {
		t.Errorf("self-heal must create a new channel, still %s", second.ChannelID)
	}
	if second.TicketNumber <= first.TicketNumber {
		t.Errorf("self-heal ticket number %d must exceed %d", second.TicketNumber, first.TicketNumber)
	}
	if fake.createCalls != 2 {
		t.Errorf("channel creations = %d, want 2", fake.createCalls)
	}
}

func TestHandleFeedbackChannelCreateFailureLeavesRegistryUntouched(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewInMemoryStore())
	fake := newFakePlatform(aliceMember())
	fake.createErr = errors.New("missing permissions")
	ctrl := NewController(reg, fake, testConfig)

	if err := ctrl.HandleFeedback(ctx, feedbackMessage("alice", "printer is broken")); err == nil {
		t.Fatal("expected error when channel creation fails")
	}

	record, _ := reg.Lookup(ctx, "alice")
	if record != nil {
		t.Errorf("registry must never reference a channel that does not exist, got %+v", record)
	}
	adminNotices := fake.channelMessages("admin-1")
	if len(adminNotices) != 1 || !strings.Contains(adminNotices[0], "missing permissions") {
		t.Errorf("expected admin notice with underlying message, got %v", adminNotices)
	}
}

func TestHandleFeedbackAttachmentsRelayedInOrder(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewInMemoryStore())
	fake := newFakePlatform(aliceMember())
	ctrl := NewController(reg, fake, testConfig)

	event := feedbackMessage("alice", "see attached")
	event.Attachments = []models.Attachment{
		{URL: "https://cdn.example/a.png", Filename: "a.png"},
		{URL: "https://cdn.example/b.log", Filename: "b.log"},
		{URL: "https://cdn.example/c.txt", Filename: "c.txt"},
	}
	if err := ctrl.HandleFeedback(ctx, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record, _ := reg.Lookup(ctx, "alice")
	messages := fake.channelMessages(record.ChannelID)
	if len(messages) != 4 {
		t.Fatalf("messages = %d, want welcome + 3 attachments", len(messages))
	}
	for i, want := range []string{"https://cdn.example/a.png", "https://cdn.example/b.log", "https://cdn.example/c.txt"} {
		if messages[i+1] != want {
			t.Errorf("attachment %d = %q, want %q (order must be preserved)", i, messages[i+1], want)
		}
	}
}

// failingReadStore wraps a KVStore and fails every read.
type failingReadStore struct {
	store.KVStore
}

func (s failingReadStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("store unavailable")
}

func TestHandleFeedbackStoreReadFailureDegradesToCreate(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(failingReadStore{store.NewInMemoryStore()})
	fake := newFakePlatform(aliceMember())
	ctrl := NewController(reg, fake, testConfig)

	if err := ctrl.HandleFeedback(ctx, feedbackMessage("alice", "printer is broken")); err != nil {
		t.Fatalf("read failure must degrade to the creation path: %v", err)
	}
	if fake.createCalls != 1 {
		t.Errorf("channel creations = %d, want 1", fake.createCalls)
	}
}
