package types

// Action identifies the kind of ledger event.
type Action string

const (
	ActionRegister Action = "register"
	ActionTransfer Action = "transfer"
)

// Valid reports whether the action is one of the known event kinds.
func (a Action) Valid() bool {
	return a == ActionRegister || a == ActionTransfer
}

// Event is one immutable entry in a replica's ledger DAG.
//
// The JSON field names are part of the on-disk and wire compatibility
// contract with existing deployments; in particular the event identifier is
// serialized as "node_id" for historical reasons.
type Event struct {
	EventID    string         `json:"node_id"`
	AssetID    string         `json:"asset_id"`
	Action     Action         `json:"action"`
	UserID     string         `json:"user_id"`
	Timestamp  float64        `json:"timestamp"`
	References []string       `json:"references"`
	Signature  string         `json:"signature"`
	Hash       string         `json:"hash"`
	Data       map[string]any `json:"data"`
}

// HistoryEntry is one step of an asset's linearized ownership chain. For a
// register event UserID is the registering user; for a transfer it is the
// recipient.
type HistoryEntry struct {
	UserID    string  `json:"user_id"`
	Timestamp float64 `json:"timestamp"`
	EventID   string  `json:"node_id"`
	Action    Action  `json:"action"`
}

// Snapshot is the serialized form of a ledger, the schema of the storage
// file.
type Snapshot struct {
	Nodes map[string]*Event `json:"nodes"`
	Tips  []string          `json:"tips"`
}

// ActionCounts breaks event totals down by kind.
type ActionCounts struct {
	Register int `json:"register"`
	Transfer int `json:"transfer"`
}

// Stats summarizes a replica's ledger.
type Stats struct {
	TotalNodes   int          `json:"total_nodes"`
	TotalTips    int          `json:"total_tips"`
	UniqueAssets int          `json:"unique_assets"`
	UniqueUsers  int          `json:"unique_users"`
	ActionCounts ActionCounts `json:"action_counts"`
}

// --- HTTP payloads ---
//
// Requests and responses shared between the replica server, the
// orchestrator server and the typed client.

// RegisterRequest is the body of POST /register_asset.
type RegisterRequest struct {
	AssetID   string         `json:"asset_id"`
	UserID    string         `json:"user_id"`
	AssetData map[string]any `json:"asset_data,omitempty"`
}

// TransferRequest is the body of POST /transfer_asset.
type TransferRequest struct {
	AssetID    string `json:"asset_id"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
}

// NFCTagRequest is the body of POST /process_nfc_tag.
type NFCTagRequest struct {
	TagID           string   `json:"tag_id"`
	UserID          string   `json:"user_id"`
	TagType         string   `json:"tag_type,omitempty"`
	TagTechnologies []string `json:"tag_technologies,omitempty"`
	NDEFMessage     string   `json:"ndef_message,omitempty"`
	Timestamp       float64  `json:"timestamp,omitempty"`
}

// NFCTagResponse is the reply to POST /process_nfc_tag.
type NFCTagResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
	Action  string `json:"action"`
	AssetID string `json:"asset_id"`
}

// OpResponse is the replica reply for single-ledger writes: Result carries
// the new event id on success or the rejection message on failure.
type OpResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

// QuorumResponse is the orchestrator reply for fabric-wide writes. NodeIDs
// lists the per-replica event ids committed during the quorum round.
type QuorumResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	NodeIDs []string `json:"node_ids"`
}

// UserAssetsResponse is the reply to GET /user_assets/{user_id}.
type UserAssetsResponse struct {
	UserID string   `json:"user_id"`
	Assets []string `json:"assets"`
}

// OwnershipResponse is the reply to GET /verify_ownership. The quorum
// fields are populated only by the orchestrator.
type OwnershipResponse struct {
	Success          bool   `json:"success"`
	AssetID          string `json:"asset_id"`
	UserID           string `json:"user_id"`
	IsOwner          bool   `json:"is_owner"`
	CurrentOwner     string `json:"current_owner,omitempty"`
	Message          string `json:"message,omitempty"`
	VerifiedCount    *int   `json:"verified_count,omitempty"`
	TotalBlockchains *int   `json:"total_blockchains,omitempty"`
	MinConsensus     *int   `json:"min_consensus,omitempty"`
}

// HistoryResponse is the reply to GET /asset_history/{asset_id}.
type HistoryResponse struct {
	AssetID string         `json:"asset_id"`
	History []HistoryEntry `json:"history"`
}

// AssetDataResponse is the reply to GET /asset_data/{asset_id}. Values are
// stringified copies of the register event's data.
type AssetDataResponse struct {
	AssetID string            `json:"asset_id"`
	Data    map[string]string `json:"data"`
}

// IntegrityResponse is the reply to GET /verify_integrity.
type IntegrityResponse struct {
	IntegrityOK bool   `json:"integrity_ok"`
	Message     string `json:"message"`
}

// StatsResponse is the reply to GET /blockchain_stats.
type StatsResponse struct {
	Success bool  `json:"success"`
	Stats   Stats `json:"stats"`
}

// HealthResponse is the reply to GET /health. ActiveBlockchains and
// MinConsensus are populated only by the orchestrator.
type HealthResponse struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	ActiveBlockchains *int   `json:"active_blockchains,omitempty"`
	MinConsensus      *int   `json:"min_consensus,omitempty"`
}

// BalanceResponse is the reply to GET /user_balance/{user_id}. Balances are
// always zero; the endpoint survives for client compatibility.
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int    `json:"balance"`
	Message string `json:"message,omitempty"`
}

// StakingStatus is the fixed shape reported for assets now that staking has
// been removed: never staked, current owner attached for reference.
type StakingStatus struct {
	IsStaked bool   `json:"is_staked"`
	OwnerID  string `json:"owner_id"`
}

// StakingStatusResponse is the orchestrator reply to
// GET /asset_staking_status/{asset_id}.
type StakingStatusResponse struct {
	Success       bool           `json:"success"`
	AssetID       string         `json:"asset_id"`
	StakingStatus *StakingStatus `json:"staking_status,omitempty"`
	Message       string         `json:"message,omitempty"`
}

// ErrorResponse is the generic failure body for malformed requests and
// removed endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
