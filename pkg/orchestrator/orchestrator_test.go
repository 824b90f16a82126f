package orchestrator

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/inlock/fabric/pkg/config"
	"github.com/inlock/fabric/pkg/ledger"
	"github.com/inlock/fabric/pkg/replica"
	"github.com/inlock/fabric/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fabric is an in-process replica fleet for orchestrator tests.
type fabric struct {
	orch     *Orchestrator
	services []*replica.Service
	servers  []*httptest.Server
}

func newFabric(t *testing.T, replicas, minConsensus int) *fabric {
	t.Helper()

	f := &fabric{}
	urls := make([]string, 0, replicas)
	for i := 0; i < replicas; i++ {
		store, err := storage.NewFileStore(filepath.Join(t.TempDir(), fmt.Sprintf("node_%d", i), "ledger.json"))
		require.NoError(t, err)
		svc := replica.NewService(ledger.New(store), nil)
		srv := httptest.NewServer(replica.NewServer(svc).Router())
		t.Cleanup(srv.Close)

		f.services = append(f.services, svc)
		f.servers = append(f.servers, srv)
		urls = append(urls, srv.URL)
	}

	cfg := config.Default()
	cfg.Replicas = urls
	cfg.MinConsensus = minConsensus
	cfg.ReadTimeout = config.Duration(2 * time.Second)
	cfg.WriteTimeout = config.Duration(5 * time.Second)

	f.orch = New(cfg)
	return f
}

// holders counts replicas whose ledger contains the asset.
func (f *fabric) holders(assetID string) int {
	n := 0
	for _, svc := range f.services {
		if len(svc.Ledger().AssetEvents(assetID)) > 0 {
			n++
		}
	}
	return n
}

func TestFanLimitTracksFleetSize(t *testing.T) {
	f := newFabric(t, 12, 3)
	assert.Equal(t, 12, f.orch.fanLimit, "fan-out admits the whole fleet at once")

	// An empty fleet still gets a workable limit; SetLimit(0) would
	// deadlock the fan-out.
	empty := New(&config.Config{MinConsensus: 1})
	assert.Equal(t, 1, empty.fanLimit)
}

func TestRefreshActive(t *testing.T) {
	f := newFabric(t, 4, 3)
	ctx := context.Background()

	active := f.orch.RefreshActive(ctx)
	assert.Len(t, active, 4)

	// A dead replica drops out of the active set.
	f.servers[0].Close()
	active = f.orch.RefreshActive(ctx)
	assert.Len(t, active, 3)
	assert.NotContains(t, active, f.servers[0].URL)
}

func TestQuorumRegister(t *testing.T) {
	f := newFabric(t, 5, 3)

	resp := f.orch.RegisterAsset(context.Background(), "asset-1", "alice", map[string]any{"name": "crate"})
	require.True(t, resp.Success, resp.Message)
	assert.Len(t, resp.NodeIDs, 3, "registration targets a quorum-sized sample")
	assert.Equal(t, 3, f.holders("asset-1"))
}

func TestRegisterInsufficientReplicas(t *testing.T) {
	f := newFabric(t, 2, 3)

	resp := f.orch.RegisterAsset(context.Background(), "asset-1", "alice", nil)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Insufficient active blockchains")
	assert.Empty(t, resp.NodeIDs)
	assert.Equal(t, 0, f.holders("asset-1"))
}

func TestRegisterQuorumShortfall(t *testing.T) {
	f := newFabric(t, 3, 3)
	ctx := context.Background()

	// Pre-register the asset on one replica so that replica rejects the
	// quorum registration and only 2 of 3 succeed.
	_, err := f.services[0].RegisterAsset("asset-1", "mallory", nil)
	require.NoError(t, err)

	resp := f.orch.RegisterAsset(ctx, "asset-1", "alice", nil)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Failed to achieve consensus")
	assert.Len(t, resp.NodeIDs, 2, "partial registrations are reported")
}

func TestQuorumTransfer(t *testing.T) {
	f := newFabric(t, 3, 3)
	ctx := context.Background()

	reg := f.orch.RegisterAsset(ctx, "asset-1", "alice", map[string]any{"name": "crate"})
	require.True(t, reg.Success)

	resp := f.orch.TransferAsset(ctx, "asset-1", "alice", "bob")
	require.True(t, resp.Success, resp.Message)
	assert.Len(t, resp.NodeIDs, 3)

	for _, svc := range f.services {
		assert.Equal(t, "bob", svc.Ledger().CurrentOwner("asset-1"))
	}
}

func TestTransferRejectedForNonOwner(t *testing.T) {
	f := newFabric(t, 3, 3)
	ctx := context.Background()

	reg := f.orch.RegisterAsset(ctx, "asset-1", "alice", nil)
	require.True(t, reg.Success)

	resp := f.orch.TransferAsset(ctx, "asset-1", "mallory", "bob")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Ownership verification failed")

	for _, svc := range f.services {
		assert.Equal(t, "alice", svc.Ledger().CurrentOwner("asset-1"))
	}
}

func TestTransferSelfHealsUnderReplicatedAsset(t *testing.T) {
	f := newFabric(t, 4, 3)
	ctx := context.Background()

	// The asset exists on a single replica, below quorum.
	_, err := f.services[0].RegisterAsset("asset-1", "alice", map[string]any{"name": "crate"})
	require.NoError(t, err)
	require.Equal(t, 1, f.holders("asset-1"))

	resp := f.orch.TransferAsset(ctx, "asset-1", "alice", "bob")
	require.True(t, resp.Success, resp.Message)

	assert.GreaterOrEqual(t, f.holders("asset-1"), 3, "asset was replicated up to quorum")
	verified, _ := f.orch.VerifyOwnership(ctx, "asset-1", "bob")
	assert.GreaterOrEqual(t, verified, 3)
}

func TestVerifyOwnershipCounts(t *testing.T) {
	f := newFabric(t, 3, 3)
	ctx := context.Background()

	// Asset on 2 of 3 replicas.
	for _, svc := range f.services[:2] {
		_, err := svc.RegisterAsset("asset-1", "alice", nil)
		require.NoError(t, err)
	}

	verified, total := f.orch.VerifyOwnership(ctx, "asset-1", "alice")
	assert.Equal(t, 2, verified)
	assert.Equal(t, 2, total, "total counts holders, not active replicas")

	verified, total = f.orch.VerifyOwnership(ctx, "asset-1", "bob")
	assert.Equal(t, 0, verified)
	assert.Equal(t, 2, total)

	_, total = f.orch.VerifyOwnership(ctx, "ghost", "alice")
	assert.Zero(t, total)
}

func TestTransferUnknownAsset(t *testing.T) {
	f := newFabric(t, 3, 3)

	resp := f.orch.TransferAsset(context.Background(), "ghost", "alice", "bob")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "not owned by alice on any blockchain")
	assert.Empty(t, resp.NodeIDs)
}

func TestAssetHistoryRequiresQuorum(t *testing.T) {
	f := newFabric(t, 3, 3)
	ctx := context.Background()

	_, err := f.services[0].RegisterAsset("asset-1", "alice", nil)
	require.NoError(t, err)

	assert.Empty(t, f.orch.AssetHistory(ctx, "asset-1"), "below-quorum assets read as empty")

	// Once the asset reaches quorum the read succeeds.
	for _, svc := range f.services[1:] {
		_, err := svc.RegisterAsset("asset-1", "alice", nil)
		require.NoError(t, err)
	}
	history := f.orch.AssetHistory(ctx, "asset-1")
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].UserID)
}

func TestAssetDataQuorumRead(t *testing.T) {
	f := newFabric(t, 3, 3)
	ctx := context.Background()

	reg := f.orch.RegisterAsset(ctx, "asset-1", "alice", map[string]any{"name": "crate", "weight": 2.5})
	require.True(t, reg.Success)

	data := f.orch.AssetData(ctx, "asset-1")
	assert.Equal(t, "crate", data["name"])
	assert.Equal(t, "2.5", data["weight"])

	assert.Empty(t, f.orch.AssetData(ctx, "ghost"))
}

func TestStakingStatus(t *testing.T) {
	f := newFabric(t, 3, 3)
	ctx := context.Background()

	reg := f.orch.RegisterAsset(ctx, "asset-1", "alice", nil)
	require.True(t, reg.Success)
	xfer := f.orch.TransferAsset(ctx, "asset-1", "alice", "bob")
	require.True(t, xfer.Success)

	status := f.orch.StakingStatus(ctx, "asset-1")
	require.NotNil(t, status)
	assert.False(t, status.IsStaked)
	assert.Equal(t, "bob", status.OwnerID, "status reports the current owner")

	assert.Nil(t, f.orch.StakingStatus(ctx, "ghost"))
}

func TestUserAssetsUnion(t *testing.T) {
	f := newFabric(t, 3, 3)
	ctx := context.Background()

	// Each replica holds a different asset; the union sees them all even
	// though no asset reaches quorum.
	for i, svc := range f.services {
		_, err := svc.RegisterAsset(fmt.Sprintf("asset-%d", i), "alice", nil)
		require.NoError(t, err)
	}

	assets := f.orch.UserAssets(ctx, "alice")
	assert.Equal(t, []string{"asset-0", "asset-1", "asset-2"}, assets)

	assert.Empty(t, f.orch.UserAssets(ctx, "nobody"))
}

func TestSampleReplicas(t *testing.T) {
	urls := []string{"a", "b", "c", "d", "e"}

	sample := sampleReplicas(urls, 3)
	assert.Len(t, sample, 3)
	seen := map[string]struct{}{}
	for _, u := range sample {
		assert.Contains(t, urls, u)
		_, dup := seen[u]
		assert.False(t, dup, "sample must not repeat replicas")
		seen[u] = struct{}{}
	}

	assert.Len(t, sampleReplicas(urls, 10), 5, "sample size caps at the population")
}
