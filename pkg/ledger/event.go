package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inlock/fabric/pkg/types"
)

// EventParams holds the inputs for creating a new event. Timestamp, EventID
// and Signature are optional; zero values are filled in at creation.
type EventParams struct {
	AssetID    string
	Action     types.Action
	UserID     string
	Data       map[string]any
	References []string

	// Timestamp in wall-clock seconds; 0 means now.
	Timestamp float64

	// EventID overrides the generated UUID, used when rebuilding events
	// from a snapshot.
	EventID string

	// Signature overrides the generated content tag.
	Signature string
}

// NewEvent builds an immutable event, filling in timestamp, event id and
// signature when absent and computing the canonical hash from the final
// field values.
func NewEvent(p EventParams) (*types.Event, error) {
	if p.AssetID == "" {
		return nil, fmt.Errorf("asset ID cannot be empty")
	}
	if !p.Action.Valid() {
		return nil, fmt.Errorf("invalid action: %s", p.Action)
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}

	e := &types.Event{
		AssetID:    p.AssetID,
		Action:     p.Action,
		UserID:     p.UserID,
		Timestamp:  p.Timestamp,
		References: p.References,
		Data:       p.Data,
		EventID:    p.EventID,
		Signature:  p.Signature,
	}

	if e.Timestamp == 0 {
		e.Timestamp = float64(time.Now().UnixNano()) / float64(time.Second)
	}
	if e.References == nil {
		e.References = []string{}
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if e.Signature == "" {
		e.Signature = generateSignature(e.UserID, e.Timestamp)
	}
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}

	e.Hash = ComputeHash(e)
	return e, nil
}
