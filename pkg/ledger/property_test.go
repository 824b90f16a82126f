package ledger

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/inlock/fabric/pkg/storage"
	"github.com/inlock/fabric/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: the canonical hash of any event survives JSON serialization,
// where every number collapses to float64.
func TestHashSurvivesSerialization(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("hash recomputes identically after a JSON round trip", prop.ForAll(
		func(keys []string, strs []string, nums []float64) bool {
			data := make(map[string]any)
			for i, k := range keys {
				if k == "" {
					continue
				}
				if i < len(strs) {
					data[k] = strs[i]
				} else if i-len(strs) < len(nums) {
					data[k] = nums[i-len(strs)]
				}
			}

			e, err := NewEvent(EventParams{
				AssetID: "asset-1",
				Action:  types.ActionRegister,
				UserID:  "alice",
				Data:    data,
			})
			if err != nil {
				return false
			}

			raw, err := json.Marshal(e)
			if err != nil {
				return false
			}
			var decoded types.Event
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return false
			}
			return ComputeHash(&decoded) == e.Hash
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Float64Range(-1e12, 1e12)),
	))

	properties.TestingRun(t)
}

// Property: after a register and any chain of transfers, the current owner is
// the last recipient and the history length is the chain length plus one.
func TestOwnershipChainLinearizes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("owner follows the transfer chain", prop.ForAll(
		func(hops uint8) bool {
			store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
			if err != nil {
				return false
			}
			l := New(store)

			owner := "user-0"
			e, err := NewEvent(EventParams{AssetID: "asset-1", Action: types.ActionRegister, UserID: owner})
			if err != nil {
				return false
			}
			if _, err := l.AddEvent(e); err != nil {
				return false
			}

			n := int(hops % 12)
			for i := 1; i <= n; i++ {
				next := fmt.Sprintf("user-%d", i)
				e, err := NewEvent(EventParams{
					AssetID:    "asset-1",
					Action:     types.ActionTransfer,
					UserID:     owner,
					Data:       map[string]any{"recipient_id": next},
					References: l.ChooseReferences(),
				})
				if err != nil {
					return false
				}
				if _, err := l.AddEvent(e); err != nil {
					return false
				}
				owner = next
			}

			history := l.OwnershipHistory("asset-1")
			return l.CurrentOwner("asset-1") == owner && len(history) == n+1
		},
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

// Property: tips always equal the set of unreferenced events.
func TestTipsMatchUnreferencedEvents(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("tip set equals unreferenced events", prop.ForAll(
		func(count uint8) bool {
			store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
			if err != nil {
				return false
			}
			l := New(store)

			n := int(count%20) + 1
			for i := 0; i < n; i++ {
				e, err := NewEvent(EventParams{
					AssetID:    fmt.Sprintf("asset-%d", i),
					Action:     types.ActionRegister,
					UserID:     "alice",
					References: l.ChooseReferences(),
				})
				if err != nil {
					return false
				}
				if _, err := l.AddEvent(e); err != nil {
					return false
				}
			}

			referenced := make(map[string]struct{})
			snap := l.Snapshot()
			for _, e := range snap.Nodes {
				for _, ref := range e.References {
					referenced[ref] = struct{}{}
				}
			}
			expected := 0
			for id := range snap.Nodes {
				if _, ok := referenced[id]; !ok {
					expected++
				}
			}
			return len(snap.Tips) == expected
		},
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
