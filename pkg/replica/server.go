package replica

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/inlock/fabric/pkg/log"
	"github.com/inlock/fabric/pkg/metrics"
	"github.com/inlock/fabric/pkg/types"
	"github.com/rs/zerolog"
)

// ServiceName is what the health endpoint reports.
const ServiceName = "inlock-replica"

// Server is the replica HTTP API.
type Server struct {
	svc    *Service
	router *mux.Router
	logger zerolog.Logger
}

// NewServer builds the HTTP surface over a replica service.
func NewServer(svc *Service) *Server {
	s := &Server{
		svc:    svc,
		router: mux.NewRouter(),
		logger: log.WithComponent("replica-api"),
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
	s.router.HandleFunc("/verify_integrity", s.handleVerifyIntegrity).Methods(http.MethodGet)
	s.router.HandleFunc("/blockchain_stats", s.handleStats).Methods(http.MethodGet)

	// Staking was removed; the endpoints survive so old clients get a clear
	// rejection instead of a 404.
	s.router.HandleFunc("/stake_asset", s.handleStakingRemoved).Methods(http.MethodPost)
	s.router.HandleFunc("/asset_staking_status/{asset_id}", s.handleStakingRemoved).Methods(http.MethodGet)
	s.router.HandleFunc("/user_balance/{user_id}", s.handleUserBalance).Methods(http.MethodGet)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// instrument counts requests per route template and status.
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
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok", Service: ServiceName})
}

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

	writeJSON(w, http.StatusOK, s.svc.ProcessNFCTag(req))
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

	// Rejections ride the same 200 envelope as successes; non-200 is
	// reserved for malformed requests.
	eventID, err := s.svc.RegisterAsset(req.AssetID, req.UserID, req.AssetData)
	if err != nil {
		writeJSON(w, http.StatusOK, types.OpResponse{Success: false, Result: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, types.OpResponse{Success: true, Result: eventID})
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

	eventID, err := s.svc.TransferAsset(req.AssetID, req.FromUserID, req.ToUserID)
	if err != nil {
		writeJSON(w, http.StatusOK, types.OpResponse{Success: false, Result: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, types.OpResponse{Success: true, Result: eventID})
}

func (s *Server) handleUserAssets(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	assets := s.svc.Ledger().UserAssets(userID)
	if assets == nil {
		assets = []string{}
	}
	writeJSON(w, http.StatusOK, types.UserAssetsResponse{UserID: userID, Assets: assets})
}

func (s *Server) handleVerifyOwnership(w http.ResponseWriter, r *http.Request) {
	assetID := r.URL.Query().Get("asset_id")
	userID := r.URL.Query().Get("user_id")
	if assetID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "asset_id and user_id are required")
		return
	}

	isOwner, owner := s.svc.VerifyOwnership(assetID, userID)
	writeJSON(w, http.StatusOK, types.OwnershipResponse{
		Success:      true,
		AssetID:      assetID,
		UserID:       userID,
		IsOwner:      isOwner,
		CurrentOwner: owner,
	})
}

func (s *Server) handleAssetHistory(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	history := s.svc.Ledger().OwnershipHistory(assetID)
	if history == nil {
		history = []types.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, types.HistoryResponse{AssetID: assetID, History: history})
}

func (s *Server) handleAssetData(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	writeJSON(w, http.StatusOK, types.AssetDataResponse{AssetID: assetID, Data: s.svc.AssetData(assetID)})
}

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	ok, msg := s.svc.Ledger().VerifyIntegrity()
	writeJSON(w, http.StatusOK, types.IntegrityResponse{IntegrityOK: ok, Message: msg})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.StatsResponse{Success: true, Stats: s.svc.Ledger().Stats()})
}

func (s *Server) handleStakingRemoved(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusBadRequest, "Staking functionality has been removed")
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
