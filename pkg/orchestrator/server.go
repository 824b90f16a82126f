package orchestrator

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/inlock/fabric/pkg/log"
	"github.com/inlock/fabric/pkg/metrics"
	"github.com/inlock/fabric/pkg/nfc"
	"github.com/inlock/fabric/pkg/types"
	"github.com/rs/zerolog"
)

// ServiceName is what the health endpoint reports.
const ServiceName = "inlock-orchestrator"

// Server is the orchestrator HTTP API. It mirrors the replica read surface
// and fronts the quorum write operations.
type Server struct {
	orch   *Orchestrator
	router *mux.Router
	logger zerolog.Logger
}

// NewServer builds the HTTP surface over an orchestrator.
func NewServer(orch *Orchestrator) *Server {
	s := &Server{
		orch:   orch,
		router: mux.NewRouter(),
		logger: log.WithComponent("orchestrator-api"),
	}
	s.routes()
	return s
}

// Router returns the handler for use with http.Server and tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(s.instrument)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/process_nfc_tag", s.handleProcessNFCTag).Methods(http.MethodPost)
	s.router.HandleFunc("/register_asset", s.handleRegisterAsset).Methods(http.MethodPost)
	s.router.HandleFunc("/transfer_asset", s.handleTransferAsset).Methods(http.MethodPost)
	s.router.HandleFunc("/user_assets/{user_id}", s.handleUserAssets).Methods(http.MethodGet)
	s.router.HandleFunc("/verify_ownership", s.handleVerifyOwnership).Methods(http.MethodGet)
	s.router.HandleFunc("/asset_history/{asset_id}", s.handleAssetHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/asset_data/{asset_id}", s.handleAssetData).Methods(http.MethodGet)

	// Staking was removed; the endpoints survive so old clients get a clear
	// rejection instead of a 404.
	s.router.HandleFunc("/stake_asset", s.handleStakeAsset).Methods(http.MethodPost)
	s.router.HandleFunc("/asset_staking_status/{asset_id}", s.handleStakingStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/user_balance/{user_id}", s.handleUserBalance).Methods(http.MethodGet)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}
		metrics.APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := len(s.orch.RefreshActive(r.Context()))
	minC := s.orch.MinConsensus()
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:            "ok",
		Service:           ServiceName,
		ActiveBlockchains: &active,
		MinConsensus:      &minC,
	})
}

// handleProcessNFCTag gives scans the quorum path: an unknown tag becomes a
// quorum registration, a known tag is a no-op.
func (s *Server) handleProcessNFCTag(w http.ResponseWriter, r *http.Request) {
	var req types.NFCTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TagID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "tag_id and user_id are required")
		return
	}

	if len(s.orch.AssetHistory(r.Context(), req.TagID)) > 0 {
		writeJSON(w, http.StatusOK, types.NFCTagResponse{
			Success: false,
			Message: "Asset already exists. Staking functionality has been removed.",
			Action:  "none",
			AssetID: req.TagID,
		})
		return
	}

	result := s.orch.RegisterAsset(r.Context(), req.TagID, req.UserID, nfc.BuildAssetData(req))
	writeJSON(w, http.StatusOK, types.NFCTagResponse{
		Success: result.Success,
		Message: result.Message,
		Action:  "register",
		AssetID: req.TagID,
	})
}

func (s *Server) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AssetID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "asset_id and user_id are required")
		return
	}

	// Quorum shortfalls ride the same 200 envelope as successes; non-200 is
	// reserved for malformed requests.
	writeJSON(w, http.StatusOK, s.orch.RegisterAsset(r.Context(), req.AssetID, req.UserID, req.AssetData))
}

func (s *Server) handleTransferAsset(w http.ResponseWriter, r *http.Request) {
	var req types.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AssetID == "" || req.FromUserID == "" || req.ToUserID == "" {
		writeError(w, http.StatusBadRequest, "asset_id, from_user_id and to_user_id are required")
		return
	}

	writeJSON(w, http.StatusOK, s.orch.TransferAsset(r.Context(), req.AssetID, req.FromUserID, req.ToUserID))
}

func (s *Server) handleUserAssets(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	assets := s.orch.UserAssets(r.Context(), userID)
	writeJSON(w, http.StatusOK, types.UserAssetsResponse{UserID: userID, Assets: assets})
}

func (s *Server) handleVerifyOwnership(w http.ResponseWriter, r *http.Request) {
	assetID := r.URL.Query().Get("asset_id")
	userID := r.URL.Query().Get("user_id")
	if assetID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "asset_id and user_id are required")
		return
	}

	verified, total := s.orch.VerifyOwnership(r.Context(), assetID, userID)
	if total == 0 {
		writeJSON(w, http.StatusOK, types.OwnershipResponse{
			Success: true,
			AssetID: assetID,
			UserID:  userID,
			IsOwner: false,
			Message: "Asset not found on any blockchain",
		})
		return
	}

	minC := s.orch.MinConsensus()
	writeJSON(w, http.StatusOK, types.OwnershipResponse{
		Success:          true,
		AssetID:          assetID,
		UserID:           userID,
		IsOwner:          verified >= minC,
		VerifiedCount:    &verified,
		TotalBlockchains: &total,
		MinConsensus:     &minC,
	})
}

func (s *Server) handleAssetHistory(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	history := s.orch.AssetHistory(r.Context(), assetID)
	writeJSON(w, http.StatusOK, types.HistoryResponse{AssetID: assetID, History: history})
}

func (s *Server) handleAssetData(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	data := s.orch.AssetData(r.Context(), assetID)
	writeJSON(w, http.StatusOK, types.AssetDataResponse{AssetID: assetID, Data: data})
}

func (s *Server) handleStakeAsset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.QuorumResponse{
		Success: false,
		Message: "Staking functionality has been removed",
		NodeIDs: []string{},
	})
}

func (s *Server) handleStakingStatus(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	status := s.orch.StakingStatus(r.Context(), assetID)
	if status == nil {
		writeJSON(w, http.StatusOK, types.StakingStatusResponse{
			Success: false,
			AssetID: assetID,
			Message: "Asset not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, types.StakingStatusResponse{
		Success:       true,
		AssetID:       assetID,
		StakingStatus: status,
	})
}

func (s *Server) handleUserBalance(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	writeJSON(w, http.StatusOK, types.BalanceResponse{
		UserID:  userID,
		Balance: 0,
		Message: "Staking functionality has been removed",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Success: false, Message: msg})
}
