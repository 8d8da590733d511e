// Package registry maintains the durable mapping between requester
// identifiers and ticket channels.
//
// The Registry is the sole reader and writer of ticket state in the
// key-value store; other modules observe and request mutations only through
// its interface.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/TicketPipe/internal/models"
	"github.com/BTreeMap/TicketPipe/internal/store"
)

// Key layout constants. One record per requester under the requester
// prefix, plus a single reserved counter key. No other keys are persisted.
const (
	// RecordKeyPrefix namespaces per-requester ticket records.
	RecordKeyPrefix = "requester:"
	// CounterKey is the reserved key holding the ticket sequence.
	CounterKey = "counter:tickets"
)

// Registry maps requester identifiers to ticket records and owns the
// ticket-numbering sequence.
type Registry struct {
	kv store.KVStore
}

// New creates a Registry backed by the given key-value store.
func New(kv store.KVStore) *Registry {
	return &Registry{kv: kv}
}

// Lookup returns the ticket record for requesterID, or nil when absent.
// Stored values that fail to decode are logged and treated as absent, so a
// corrupt record degrades to the re-creation path instead of wedging the
// requester.
func (r *Registry) Lookup(ctx context.Context, requesterID string) (*models.TicketRecord, error) {
	if requesterID == "" {
		return nil, models.ErrEmptyRequester
	}

	raw, err := r.kv.Get(ctx, RecordKeyPrefix+requesterID)
	if err != nil {
		slog.Error("Registry Lookup store read failed", "error", err, "requester", requesterID)
		return nil, fmt.Errorf("failed to read ticket record for %s: %w", requesterID, err)
	}
	if raw == nil {
		slog.Debug("Registry Lookup no record", "requester", requesterID)
		return nil, nil
	}

	var record models.TicketRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		slog.Warn("Registry Lookup undecodable record, treating as absent", "error", err, "requester", requesterID)
		return nil, nil
	}

	slog.Debug("Registry Lookup found record", "requester", requesterID, "channel", record.ChannelID, "ticket", record.TicketNumber)
	return &record, nil
}

// Create persists a record mapping requesterID to the given channel and
// user under the ticket number allocated for it. The number comes from
// NextTicketNumber, called before the channel exists so the channel can be
// named from it; exactly one value is consumed per successful creation.
// Create must be called at most once per requester while no record exists
// for that requester; the lifecycle controller enforces this with
// per-requester serialization.
func (r *Registry) Create(ctx context.Context, requesterID, channelID, userID string, number int64) (*models.TicketRecord, error) {
	if requesterID == "" {
		return nil, models.ErrEmptyRequester
	}

	record := &models.TicketRecord{
		RequesterID:  requesterID,
		ChannelID:    channelID,
		UserID:       userID,
		TicketNumber: number,
		CreatedAt:    time.Now().UTC(),
	}

	raw, err := json.Marshal(record)
	if err != nil {
		slog.Error("Registry Create marshal failed", "error", err, "requester", requesterID)
		return nil, fmt.Errorf("failed to marshal ticket record for %s: %w", requesterID, err)
	}

	if err := r.kv.Set(ctx, RecordKeyPrefix+requesterID, raw); err != nil {
		slog.Error("Registry Create store write failed", "error", err, "requester", requesterID)
		return nil, fmt.Errorf("failed to write ticket record for %s: %w", requesterID, err)
	}

	slog.Info("Registry created ticket record", "requester", requesterID, "channel", channelID, "ticket", number)
	return record, nil
}

// Remove deletes the ticket record for requesterID. Removing an absent
// record is not an error.
func (r *Registry) Remove(ctx context.Context, requesterID string) error {
	if requesterID == "" {
		return models.ErrEmptyRequester
	}

	if err := r.kv.Delete(ctx, RecordKeyPrefix+requesterID); err != nil {
		slog.Error("Registry Remove store delete failed", "error", err, "requester", requesterID)
		return fmt.Errorf("failed to delete ticket record for %s: %w", requesterID, err)
	}

	slog.Debug("Registry removed ticket record", "requester", requesterID)
	return nil
}

// NextTicketNumber allocates the next value of the ticket sequence. The
// first allocation returns 1. The sequence is strictly increasing and
// values are never reused, even after tickets close.
func (r *Registry) NextTicketNumber(ctx context.Context) (int64, error) {
	number, err := r.kv.IncrAndGet(ctx, CounterKey)
	if err != nil {
		slog.Error("Registry NextTicketNumber failed", "error", err)
		return 0, fmt.Errorf("failed to allocate ticket number: %w", err)
	}
	slog.Debug("Registry allocated ticket number", "ticket", number)
	return number, nil
}
