package ledger

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/inlock/fabric/pkg/log"
	"github.com/inlock/fabric/pkg/metrics"
	"github.com/inlock/fabric/pkg/storage"
	"github.com/inlock/fabric/pkg/types"
	"github.com/rs/zerolog"
)

// Ledger is the per-replica append-only DAG of asset events.
//
// A single coarse mutex covers validation, mutation and persistence so the
// ledger invariants hold under concurrent HTTP handlers. Events are never
// mutated or deleted once appended.
type Ledger struct {
	mu     sync.RWMutex
	events map[string]*types.Event
	tips   map[string]struct{}
	store  storage.Store
	logger zerolog.Logger
}

// New creates a ledger backed by store, loading the existing snapshot when
// one is present. A snapshot that fails to load is logged and the ledger
// starts empty, matching the recovery behavior of deployed replicas.
func New(store storage.Store) *Ledger {
	l := &Ledger{
		events: make(map[string]*types.Event),
		tips:   make(map[string]struct{}),
		store:  store,
		logger: log.WithComponent("ledger"),
	}

	if store.Exists() {
		snap, err := store.Load()
		if err != nil {
			l.logger.Error().Err(err).
				Str("path", store.Path()).
				Msg("failed to load ledger, starting empty")
			return l
		}
		for id, e := range snap.Nodes {
			l.events[id] = e
		}
		for _, id := range snap.Tips {
			l.tips[id] = struct{}{}
		}
		l.logger.Info().
			Str("path", store.Path()).
			Int("events", len(l.events)).
			Msg("ledger loaded")
	}

	return l
}

// AddEvent validates and appends an event, updating the tip set and
// persisting the result. On validation failure the rejection is returned as
// an error and the ledger is unchanged. A persistence failure is logged but
// the in-memory mutation is kept.
func (l *Ledger) AddEvent(e *types.Event) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validateLocked(e); err != nil {
		l.logger.Warn().Err(err).Str("event_id", e.EventID).Msg("event validation failed")
		return "", err
	}

	l.events[e.EventID] = e
	for _, ref := range e.References {
		delete(l.tips, ref)
	}
	l.tips[e.EventID] = struct{}{}

	l.logger.Info().
		Str("event_id", e.EventID).
		Str("action", string(e.Action)).
		Str("asset_id", e.AssetID).
		Str("user_id", e.UserID).
		Msg("event appended")
	metrics.EventsTotal.WithLabelValues(string(e.Action)).Inc()

	l.persistLocked()

	return e.EventID, nil
}

// validateLocked enforces the append rules. Caller holds the write lock.
func (l *Ledger) validateLocked(e *types.Event) error {
	if _, exists := l.events[e.EventID]; exists {
		return fmt.Errorf("event with ID %s already exists", e.EventID)
	}

	for _, ref := range e.References {
		if _, exists := l.events[ref]; !exists {
			return fmt.Errorf("referenced event %s does not exist", ref)
		}
	}

	if len(e.References) > 2 {
		return fmt.Errorf("an event cannot have more than 2 references")
	}

	switch e.Action {
	case types.ActionRegister:
		for _, existing := range l.events {
			if existing.AssetID == e.AssetID && existing.Action == types.ActionRegister {
				return fmt.Errorf("asset %s is already registered", e.AssetID)
			}
		}
		if len(e.Data) == 0 {
			l.logger.Warn().Str("asset_id", e.AssetID).Msg("asset registered without metadata")
		}

	case types.ActionTransfer:
		history := l.ownershipHistoryLocked(e.AssetID)
		if len(history) == 0 {
			return fmt.Errorf("asset %s is not registered", e.AssetID)
		}

		currentOwner := history[len(history)-1].UserID
		if currentOwner != e.UserID {
			return fmt.Errorf("transfer requested by %s, but asset is owned by %s", e.UserID, currentOwner)
		}

		recipient, ok := e.Data["recipient_id"]
		if !ok {
			return fmt.Errorf("transfer must include a recipient_id in the data")
		}
		recipientID, _ := recipient.(string)
		if recipientID == e.UserID {
			return fmt.Errorf("cannot transfer asset to yourself")
		}
		if recipientID == "" {
			return fmt.Errorf("recipient ID cannot be empty")
		}
	}

	return nil
}

// Event returns the event with the given id, or nil.
func (l *Ledger) Event(id string) *types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events[id]
}

// AssetEvents returns every event for an asset, in no particular order.
func (l *Ledger) AssetEvents(assetID string) []*types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*types.Event
	for _, e := range l.events {
		if e.AssetID == assetID {
			out = append(out, e)
		}
	}
	return out
}

// UserEvents returns every event initiated by a user, in no particular
// order.
func (l *Ledger) UserEvents(userID string) []*types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*types.Event
	for _, e := range l.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// OwnershipHistory linearizes an asset's events into an ownership chain,
// sorted by timestamp ascending with ties broken by event id.
func (l *Ledger) OwnershipHistory(assetID string) []types.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ownershipHistoryLocked(assetID)
}

func (l *Ledger) ownershipHistoryLocked(assetID string) []types.HistoryEntry {
	var events []*types.Event
	for _, e := range l.events {
		if e.AssetID == assetID {
			events = append(events, e)
		}
	}
	if len(events) == 0 {
		return nil
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].EventID < events[j].EventID
	})

	var history []types.HistoryEntry
	for _, e := range events {
		switch e.Action {
		case types.ActionRegister:
			history = append(history, types.HistoryEntry{
				UserID:    e.UserID,
				Timestamp: e.Timestamp,
				EventID:   e.EventID,
				Action:    types.ActionRegister,
			})
		case types.ActionTransfer:
			recipient, ok := e.Data["recipient_id"].(string)
			if !ok {
				continue
			}
			history = append(history, types.HistoryEntry{
				UserID:    recipient,
				Timestamp: e.Timestamp,
				EventID:   e.EventID,
				Action:    types.ActionTransfer,
			})
		}
	}
	return history
}

// CurrentOwner returns the owner at the end of the ownership chain, or ""
// when the asset is unknown.
func (l *Ledger) CurrentOwner(assetID string) string {
	history := l.OwnershipHistory(assetID)
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].UserID
}

// UserAssets returns the assets whose current owner is userID.
func (l *Ledger) UserAssets(userID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	assets := make(map[string]struct{})
	for _, e := range l.events {
		assets[e.AssetID] = struct{}{}
	}

	var owned []string
	for assetID := range assets {
		history := l.ownershipHistoryLocked(assetID)
		if len(history) > 0 && history[len(history)-1].UserID == userID {
			owned = append(owned, assetID)
		}
	}
	return owned
}

// ChooseReferences picks reference event ids for a new event: a uniform
// 2-sample of the tip set when at least two tips exist, otherwise every tip.
func (l *Ledger) ChooseReferences() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tips := make([]string, 0, len(l.tips))
	for id := range l.tips {
		tips = append(tips, id)
	}
	sort.Strings(tips)

	if len(tips) >= 2 {
		perm := rand.Perm(len(tips))
		return []string{tips[perm[0]], tips[perm[1]]}
	}
	return tips
}

// Tips returns the current tip ids.
func (l *Ledger) Tips() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tips := make([]string, 0, len(l.tips))
	for id := range l.tips {
		tips = append(tips, id)
	}
	sort.Strings(tips)
	return tips
}

// Len returns the number of events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Stats summarizes the ledger for the stats endpoint.
func (l *Ledger) Stats() types.Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	assets := make(map[string]struct{})
	users := make(map[string]struct{})
	var counts types.ActionCounts
	for _, e := range l.events {
		assets[e.AssetID] = struct{}{}
		users[e.UserID] = struct{}{}
		switch e.Action {
		case types.ActionRegister:
			counts.Register++
		case types.ActionTransfer:
			counts.Transfer++
		}
	}

	return types.Stats{
		TotalNodes:   len(l.events),
		TotalTips:    len(l.tips),
		UniqueAssets: len(assets),
		UniqueUsers:  len(users),
		ActionCounts: counts,
	}
}

// VerifyIntegrity checks the ledger in four passes: reference closure, hash
// closure, ownership chains, and tip reconciliation. A tip mismatch is the
// only condition repaired in place (the computed tip set replaces the stored
// one and is persisted); any other violation is reported without repair.
func (l *Ledger) VerifyIntegrity() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info().Msg("verifying reference integrity")
	for id, e := range l.events {
		for _, ref := range e.References {
			if _, exists := l.events[ref]; !exists {
				return false, fmt.Sprintf("event %s references non-existent event %s", id, ref)
			}
		}
	}

	l.logger.Info().Msg("verifying hash integrity")
	for id, e := range l.events {
		if e.Hash != ComputeHash(e) {
			return false, fmt.Sprintf("hash mismatch for event %s", id)
		}
	}

	l.logger.Info().Msg("verifying asset ownership chains")
	assets := make(map[string]struct{})
	for _, e := range l.events {
		assets[e.AssetID] = struct{}{}
	}
	for assetID := range assets {
		history := l.ownershipHistoryLocked(assetID)
		for i := 1; i < len(history); i++ {
			if history[i].Action != types.ActionTransfer {
				continue
			}
			transfer, exists := l.events[history[i].EventID]
			if !exists {
				return false, fmt.Sprintf("missing transfer event %s", history[i].EventID)
			}
			if transfer.UserID != history[i-1].UserID {
				return false, fmt.Sprintf("transfer event %s has invalid initiator", history[i].EventID)
			}
		}
	}

	l.logger.Info().Msg("verifying DAG tips")
	referenced := make(map[string]struct{})
	for _, e := range l.events {
		for _, ref := range e.References {
			referenced[ref] = struct{}{}
		}
	}
	computed := make(map[string]struct{})
	for id := range l.events {
		if _, ok := referenced[id]; !ok {
			computed[id] = struct{}{}
		}
	}

	if !tipSetsEqual(l.tips, computed) {
		l.logger.Warn().
			Int("stored", len(l.tips)).
			Int("computed", len(computed)).
			Msg("tip inconsistency detected, auto-fixing")
		l.tips = computed
		metrics.IntegrityRepairsTotal.Inc()
		l.persistLocked()
	}

	return true, "DAG integrity verified"
}

// CorruptTipsForTest overwrites the tip set, bypassing validation. Test
// hook for exercising the integrity self-heal.
func (l *Ledger) CorruptTipsForTest(tips []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tips = make(map[string]struct{}, len(tips))
	for _, id := range tips {
		l.tips[id] = struct{}{}
	}
}

// Snapshot returns a copy of the ledger state in storage form.
func (l *Ledger) Snapshot() *types.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() *types.Snapshot {
	snap := &types.Snapshot{
		Nodes: make(map[string]*types.Event, len(l.events)),
		Tips:  make([]string, 0, len(l.tips)),
	}
	for id, e := range l.events {
		snap.Nodes[id] = e
	}
	for id := range l.tips {
		snap.Tips = append(snap.Tips, id)
	}
	sort.Strings(snap.Tips)
	return snap
}

// persistLocked saves the current state. Failures are logged and counted but
// never roll back the in-memory mutation.
func (l *Ledger) persistLocked() {
	if err := l.store.Save(l.snapshotLocked()); err != nil {
		l.logger.Error().Err(err).Str("path", l.store.Path()).Msg("failed to save ledger")
		metrics.SaveFailuresTotal.Inc()
		return
	}
	l.logger.Debug().Int("events", len(l.events)).Msg("ledger saved")
}

func tipSetsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
