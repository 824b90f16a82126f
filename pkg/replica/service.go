package replica

import (
	"fmt"
	"time"

	"github.com/inlock/fabric/pkg/ledger"
	"github.com/inlock/fabric/pkg/log"
	"github.com/inlock/fabric/pkg/nfc"
	"github.com/inlock/fabric/pkg/types"
	"github.com/rs/zerolog"
)

// Service implements the replica-level operations on top of a single ledger.
// It owns the convenience flows the HTTP surface exposes: reference
// selection, transfer metadata, NFC scan handling and read projections.
type Service struct {
	ledger  *ledger.Ledger
	journal *nfc.Journal
	logger  zerolog.Logger
}

// NewService wraps a ledger. The journal is optional; a nil journal disables
// scan journaling without affecting scan processing.
func NewService(l *ledger.Ledger, journal *nfc.Journal) *Service {
	return &Service{
		ledger:  l,
		journal: journal,
		logger:  log.WithComponent("replica"),
	}
}

// Ledger exposes the underlying ledger for read endpoints.
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// RegisterAsset appends a register event for the asset, choosing references
// from the current tips. Returns the new event id.
func (s *Service) RegisterAsset(assetID, userID string, assetData map[string]any) (string, error) {
	if assetData == nil {
		assetData = map[string]any{}
	}
	e, err := ledger.NewEvent(ledger.EventParams{
		AssetID:    assetID,
		Action:     types.ActionRegister,
		UserID:     userID,
		Data:       assetData,
		References: s.ledger.ChooseReferences(),
	})
	if err != nil {
		return "", err
	}
	return s.ledger.AddEvent(e)
}

// TransferAsset appends a transfer event moving the asset from one user to
// another. Ownership is checked up front so the caller gets the ownership
// message rather than the ledger's internal rejection.
func (s *Service) TransferAsset(assetID, fromUserID, toUserID string) (string, error) {
	owner := s.ledger.CurrentOwner(assetID)
	if owner == "" {
		return "", fmt.Errorf("asset %s is not registered", assetID)
	}
	if owner != fromUserID {
		return "", fmt.Errorf("asset %s is not owned by %s", assetID, fromUserID)
	}

	e, err := ledger.NewEvent(ledger.EventParams{
		AssetID: assetID,
		Action:  types.ActionTransfer,
		UserID:  fromUserID,
		Data: map[string]any{
			"recipient_id":       toUserID,
			"transfer_timestamp": float64(time.Now().UnixNano()) / float64(time.Second),
			"status":             "completed",
		},
		References: s.ledger.ChooseReferences(),
	})
	if err != nil {
		return "", err
	}
	return s.ledger.AddEvent(e)
}

// VerifyOwnership reports whether userID currently owns assetID, along with
// the actual current owner ("" when the asset is unknown).
func (s *Service) VerifyOwnership(assetID, userID string) (bool, string) {
	owner := s.ledger.CurrentOwner(assetID)
	return owner != "" && owner == userID, owner
}

// AssetData returns the register event's metadata for an asset, with every
// value rendered as a string. Unknown assets yield an empty map.
func (s *Service) AssetData(assetID string) map[string]string {
	for _, e := range s.ledger.AssetEvents(assetID) {
		if e.Action != types.ActionRegister {
			continue
		}
		out := make(map[string]string, len(e.Data))
		for k, v := range e.Data {
			out[k] = ledger.FormatValue(v)
		}
		return out
	}
	return map[string]string{}
}

// ProcessNFCTag handles one tag scan: an unknown tag is registered to the
// scanning user, a known tag is a no-op. Every scan is journaled when a
// journal is configured.
func (s *Service) ProcessNFCTag(req types.NFCTagRequest) types.NFCTagResponse {
	var resp types.NFCTagResponse
	resp.AssetID = req.TagID

	if owner := s.ledger.CurrentOwner(req.TagID); owner != "" {
		resp.Success = false
		resp.Action = "none"
		resp.Message = "Asset already exists. Staking functionality has been removed."
		s.logger.Info().Str("tag_id", req.TagID).Str("owner", owner).Msg("scanned tag already registered")
	} else {
		eventID, err := s.RegisterAsset(req.TagID, req.UserID, nfc.BuildAssetData(req))
		resp.Action = "register"
		if err != nil {
			resp.Success = false
			resp.Result = err.Error()
			s.logger.Warn().Err(err).Str("tag_id", req.TagID).Msg("tag registration failed")
		} else {
			resp.Success = true
			resp.Result = eventID
		}
	}

	if s.journal != nil {
		rec := nfc.ScanRecord{
			TagID:     req.TagID,
			UserID:    req.UserID,
			Action:    resp.Action,
			Message:   resp.Message,
			ScannedAt: req.Timestamp,
		}
		if resp.Success {
			rec.EventID = resp.Result
		} else if rec.Message == "" {
			rec.Message = resp.Result
		}
		if err := s.journal.Record(rec); err != nil {
			s.logger.Warn().Err(err).Str("tag_id", req.TagID).Msg("failed to journal scan")
		}
	}

	return resp
}
