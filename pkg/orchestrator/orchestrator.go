package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/inlock/fabric/pkg/client"
	"github.com/inlock/fabric/pkg/config"
	"github.com/inlock/fabric/pkg/health"
	"github.com/inlock/fabric/pkg/log"
	"github.com/inlock/fabric/pkg/metrics"
	"github.com/inlock/fabric/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Orchestrator coordinates quorum operations across the replica fleet. It
// keeps no ledger state of its own; every operation re-probes replica health
// and fans out to the active set.
type Orchestrator struct {
	cfg     *config.Config
	clients map[string]*client.Client

	// fanLimit bounds concurrent replica calls; one slot per configured
	// replica so a full fan-out never queues behind itself.
	fanLimit int

	mu     sync.RWMutex
	active []string

	logger zerolog.Logger
}

// New builds an orchestrator over the configured replica fleet.
func New(cfg *config.Config) *Orchestrator {
	clients := make(map[string]*client.Client, len(cfg.Replicas))
	for _, url := range cfg.Replicas {
		clients[url] = client.NewClient(url).WithTimeouts(cfg.ReadTimeout.Duration(), cfg.WriteTimeout.Duration())
	}
	return &Orchestrator{
		cfg:      cfg,
		clients:  clients,
		fanLimit: max(1, len(cfg.Replicas)),
		logger:   log.WithComponent("orchestrator"),
	}
}

// MinConsensus returns the configured quorum size.
func (o *Orchestrator) MinConsensus() int {
	return o.cfg.MinConsensus
}

// ActiveCount returns the size of the active set from the last refresh.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// RefreshActive probes every configured replica and rebuilds the active set.
// Returns the active replica URLs in stable order.
func (o *Orchestrator) RefreshActive(ctx context.Context) []string {
	var (
		mu      sync.Mutex
		healthy []string
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanLimit)
	for _, url := range o.cfg.Replicas {
		url := url
		g.Go(func() error {
			checker := health.NewHTTPChecker(url + "/health").WithTimeout(o.cfg.ReadTimeout.Duration())
			if res := checker.Check(ctx); res.Healthy {
				mu.Lock()
				healthy = append(healthy, url)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(healthy)
	o.mu.Lock()
	o.active = healthy
	o.mu.Unlock()

	metrics.ActiveReplicas.Set(float64(len(healthy)))
	o.logger.Debug().
		Int("active", len(healthy)).
		Int("configured", len(o.cfg.Replicas)).
		Msg("active set refreshed")
	return healthy
}

// RegisterAsset registers an asset on a random quorum-sized sample of the
// active replicas. The registration succeeds only when at least MinConsensus
// replicas accept it; a shortfall leaves partial registrations in place and
// flags them for cleanup.
func (o *Orchestrator) RegisterAsset(ctx context.Context, assetID, userID string, assetData map[string]any) types.QuorumResponse {
	active := o.RefreshActive(ctx)
	if len(active) < o.cfg.MinConsensus {
		metrics.QuorumOpsTotal.WithLabelValues("register", "failure").Inc()
		return types.QuorumResponse{
			Success: false,
			Message: fmt.Sprintf("Insufficient active blockchains: %d available, %d required", len(active), o.cfg.MinConsensus),
			NodeIDs: []string{},
		}
	}

	targets := sampleReplicas(active, max(o.cfg.MinConsensus, 3))
	o.logger.Info().
		Str("asset_id", assetID).
		Str("user_id", userID).
		Strs("targets", targets).
		Msg("registering asset")

	type result struct {
		url     string
		eventID string
	}
	var (
		mu        sync.Mutex
		succeeded []result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanLimit)
	for _, url := range targets {
		url := url
		g.Go(func() error {
			resp, err := o.clients[url].RegisterAsset(gctx, assetID, userID, assetData)
			if err != nil {
				o.logger.Warn().Err(err).Str("replica", url).Msg("register request failed")
				return nil
			}
			if !resp.Success {
				o.logger.Warn().Str("replica", url).Str("reason", resp.Result).Msg("register rejected")
				return nil
			}
			mu.Lock()
			succeeded = append(succeeded, result{url: url, eventID: resp.Result})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	nodeIDs := make([]string, 0, len(succeeded))
	urls := make([]string, 0, len(succeeded))
	for _, r := range succeeded {
		nodeIDs = append(nodeIDs, r.eventID)
		urls = append(urls, r.url)
	}

	if len(succeeded) < o.cfg.MinConsensus {
		// Partial registrations stay on disk; removing events would break
		// ledger immutability, so they are only flagged for operator review.
		o.logger.Error().
			Str("asset_id", assetID).
			Int("succeeded", len(succeeded)).
			Int("required", o.cfg.MinConsensus).
			Strs("replicas", urls).
			Msg("consensus not reached, partial registrations need cleanup")
		metrics.QuorumOpsTotal.WithLabelValues("register", "failure").Inc()
		return types.QuorumResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to achieve consensus: %d/%d registrations succeeded", len(succeeded), o.cfg.MinConsensus),
			NodeIDs: nodeIDs,
		}
	}

	metrics.QuorumOpsTotal.WithLabelValues("register", "success").Inc()
	return types.QuorumResponse{
		Success: true,
		Message: fmt.Sprintf("Asset registered on %d blockchains", len(succeeded)),
		NodeIDs: nodeIDs,
	}
}

// TransferAsset transfers an asset across the replicas that hold it. When
// fewer than MinConsensus replicas hold the asset the orchestrator first
// self-heals by replicating it, then requires quorum ownership verification
// before fanning out the transfer.
func (o *Orchestrator) TransferAsset(ctx context.Context, assetID, fromUserID, toUserID string) types.QuorumResponse {
	active := o.RefreshActive(ctx)
	if len(active) < o.cfg.MinConsensus {
		metrics.QuorumOpsTotal.WithLabelValues("transfer", "failure").Inc()
		return types.QuorumResponse{
			Success: false,
			Message: fmt.Sprintf("Insufficient active blockchains: %d available, %d required", len(active), o.cfg.MinConsensus),
			NodeIDs: []string{},
		}
	}

	holders := o.findHolders(ctx, assetID, active)
	if len(holders) < o.cfg.MinConsensus {
		valid := o.verifyAcross(ctx, assetID, fromUserID, holders)
		if len(valid) == 0 {
			metrics.QuorumOpsTotal.WithLabelValues("transfer", "failure").Inc()
			return types.QuorumResponse{
				Success: false,
				Message: fmt.Sprintf("Asset %s is not owned by %s on any blockchain", assetID, fromUserID),
				NodeIDs: []string{},
			}
		}
		o.selfHeal(ctx, assetID, fromUserID, active, valid)
		holders = o.findHolders(ctx, assetID, active)
	}

	verified := o.verifyAcross(ctx, assetID, fromUserID, holders)
	if len(verified) < o.cfg.MinConsensus {
		metrics.QuorumOpsTotal.WithLabelValues("transfer", "failure").Inc()
		return types.QuorumResponse{
			Success: false,
			Message: fmt.Sprintf("Ownership verification failed: asset %s is not owned by %s on enough blockchains (%d/%d)", assetID, fromUserID, len(verified), o.cfg.MinConsensus),
			NodeIDs: []string{},
		}
	}

	o.logger.Info().
		Str("asset_id", assetID).
		Str("from", fromUserID).
		Str("to", toUserID).
		Strs("replicas", verified).
		Msg("transferring asset")

	var (
		mu      sync.Mutex
		nodeIDs []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanLimit)
	for _, url := range verified {
		url := url
		g.Go(func() error {
			resp, err := o.clients[url].TransferAsset(gctx, assetID, fromUserID, toUserID)
			if err != nil {
				o.logger.Warn().Err(err).Str("replica", url).Msg("transfer request failed")
				return nil
			}
			if !resp.Success {
				o.logger.Warn().Str("replica", url).Str("reason", resp.Result).Msg("transfer rejected")
				return nil
			}
			mu.Lock()
			nodeIDs = append(nodeIDs, resp.Result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(nodeIDs) < o.cfg.MinConsensus {
		metrics.QuorumOpsTotal.WithLabelValues("transfer", "failure").Inc()
		return types.QuorumResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to achieve consensus: %d/%d transfers succeeded", len(nodeIDs), o.cfg.MinConsensus),
			NodeIDs: nodeIDs,
		}
	}

	metrics.QuorumOpsTotal.WithLabelValues("transfer", "success").Inc()
	return types.QuorumResponse{
		Success: true,
		Message: fmt.Sprintf("Asset transferred on %d blockchains", len(nodeIDs)),
		NodeIDs: nodeIDs,
	}
}

// VerifyOwnership counts how many holders of the asset confirm userID as the
// current owner. Total is the number of holders; ownership holds when the
// verified count reaches MinConsensus.
func (o *Orchestrator) VerifyOwnership(ctx context.Context, assetID, userID string) (verified, total int) {
	active := o.RefreshActive(ctx)
	holders := o.findHolders(ctx, assetID, active)
	return len(o.verifyAcross(ctx, assetID, userID, holders)), len(holders)
}

// AssetHistory returns the asset's ownership history. The asset must be held
// by at least MinConsensus active replicas and at least that many must answer
// with a non-empty history; otherwise the history is reported empty. The
// first non-empty answer wins, no value-level reconciliation.
func (o *Orchestrator) AssetHistory(ctx context.Context, assetID string) []types.HistoryEntry {
	active := o.RefreshActive(ctx)
	holders := o.findHolders(ctx, assetID, active)
	if len(holders) < o.cfg.MinConsensus {
		o.logger.Debug().
			Str("asset_id", assetID).
			Int("holders", len(holders)).
			Int("required", o.cfg.MinConsensus).
			Msg("history read below quorum")
		return []types.HistoryEntry{}
	}

	var (
		mu        sync.Mutex
		histories [][]types.HistoryEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanLimit)
	for _, url := range holders {
		url := url
		g.Go(func() error {
			history, err := o.clients[url].AssetHistory(gctx, assetID)
			if err != nil || len(history) == 0 {
				return nil
			}
			mu.Lock()
			histories = append(histories, history)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(histories) < o.cfg.MinConsensus {
		return []types.HistoryEntry{}
	}
	return histories[0]
}

// AssetData returns the asset's register metadata under the same quorum rule
// as AssetHistory, empty when quorum cannot be met.
func (o *Orchestrator) AssetData(ctx context.Context, assetID string) map[string]string {
	active := o.RefreshActive(ctx)
	holders := o.findHolders(ctx, assetID, active)
	if len(holders) < o.cfg.MinConsensus {
		return map[string]string{}
	}

	var (
		mu      sync.Mutex
		results []map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanLimit)
	for _, url := range holders {
		url := url
		g.Go(func() error {
			data, err := o.clients[url].AssetData(gctx, assetID)
			if err != nil || len(data) == 0 {
				return nil
			}
			mu.Lock()
			results = append(results, data)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(results) < o.cfg.MinConsensus {
		return map[string]string{}
	}
	return results[0]
}

// StakingStatus reports the fixed post-staking status of an asset: never
// staked, annotated with the current owner. Returns nil when no active
// replica holds the asset.
func (o *Orchestrator) StakingStatus(ctx context.Context, assetID string) *types.StakingStatus {
	active := o.RefreshActive(ctx)
	holders := o.findHolders(ctx, assetID, active)
	if len(holders) == 0 {
		return nil
	}

	status := &types.StakingStatus{IsStaked: false}
	if history, err := o.clients[holders[0]].AssetHistory(ctx, assetID); err == nil && len(history) > 0 {
		status.OwnerID = history[len(history)-1].UserID
	}
	return status
}

// UserAssets returns the union of the user's assets across all active
// replicas. Union rather than quorum: a missed replica must not hide assets
// from their owner.
func (o *Orchestrator) UserAssets(ctx context.Context, userID string) []string {
	active := o.RefreshActive(ctx)

	var (
		mu    sync.Mutex
		union = make(map[string]struct{})
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanLimit)
	for _, url := range active {
		url := url
		g.Go(func() error {
			assets, err := o.clients[url].UserAssets(gctx, userID)
			if err != nil {
				o.logger.Warn().Err(err).Str("replica", url).Msg("user assets request failed")
				return nil
			}
			mu.Lock()
			for _, a := range assets {
				union[a] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(union))
	for a := range union {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// findHolders returns the active replicas whose ledger contains the asset.
func (o *Orchestrator) findHolders(ctx context.Context, assetID string, active []string) []string {
	var (
		mu      sync.Mutex
		holders []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanLimit)
	for _, url := range active {
		url := url
		g.Go(func() error {
			history, err := o.clients[url].AssetHistory(gctx, assetID)
			if err == nil && len(history) > 0 {
				mu.Lock()
				holders = append(holders, url)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(holders)
	return holders
}

// verifyAcross returns the replicas among urls that confirm userID as the
// asset's current owner.
func (o *Orchestrator) verifyAcross(ctx context.Context, assetID, userID string, urls []string) []string {
	var (
		mu       sync.Mutex
		verified []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanLimit)
	for _, url := range urls {
		url := url
		g.Go(func() error {
			if o.clients[url].VerifyOwnership(gctx, assetID, userID) {
				mu.Lock()
				verified = append(verified, url)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(verified)
	return verified
}

// selfHeal replicates an under-replicated asset onto active replicas that do
// not hold it, re-registering it under the same owner with the metadata
// fetched from the first source holder. Best-effort: failures are logged and
// the subsequent quorum check decides whether the operation proceeds.
func (o *Orchestrator) selfHeal(ctx context.Context, assetID, owner string, active, source []string) {
	logger := log.WithAssetID(assetID)

	data, err := o.clients[source[0]].AssetData(ctx, assetID)
	if err != nil || len(data) == 0 {
		logger.Warn().Err(err).
			Str("source", source[0]).
			Msg("failed to fetch asset data for self-heal")
		return
	}
	assetData := make(map[string]any, len(data))
	for k, v := range data {
		assetData[k] = v
	}

	sourceSet := make(map[string]struct{}, len(source))
	for _, url := range source {
		sourceSet[url] = struct{}{}
	}
	candidates := make([]string, 0, len(active))
	for _, url := range active {
		if _, held := sourceSet[url]; !held {
			candidates = append(candidates, url)
		}
	}

	needed := o.cfg.MinConsensus - len(source)
	if needed <= 0 {
		return
	}
	if len(candidates) < needed {
		logger.Warn().
			Int("needed", needed).
			Int("candidates", len(candidates)).
			Msg("not enough replicas available for self-heal")
		return
	}

	for _, url := range sampleReplicas(candidates, needed) {
		rlog := log.WithReplica(url)
		resp, err := o.clients[url].RegisterAsset(ctx, assetID, owner, assetData)
		if err != nil || !resp.Success {
			metrics.ReplicationsTotal.WithLabelValues("failure").Inc()
			rlog.Warn().Err(err).
				Str("asset_id", assetID).
				Msg("self-heal replication failed")
			continue
		}
		metrics.ReplicationsTotal.WithLabelValues("success").Inc()
		rlog.Info().
			Str("asset_id", assetID).
			Msg("asset replicated for self-heal")
	}
}

// sampleReplicas picks a uniform random sample of up to n replicas.
func sampleReplicas(urls []string, n int) []string {
	if n > len(urls) {
		n = len(urls)
	}
	perm := rand.Perm(len(urls))
	out := make([]string, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, urls[idx])
	}
	return out
}
