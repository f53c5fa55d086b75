package reach

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const top = 100

func TestRequired_DirectWins(t *testing.T) {
	got := Required([]Path{
		{UserID: "u1", RoleID: "reader", Level: 10},
		{UserID: "u1", RoleID: "admin", Level: 90, Direct: true},
		{UserID: "u1", RoleID: "analyst", Level: 50},
		{UserID: "u2", RoleID: "analyst", Level: 50},
		{UserID: "u2", RoleID: "reader", Level: 10},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "admin", got["u1"].RoleID)
	assert.True(t, got["u1"].Direct)
	assert.Equal(t, "analyst", got["u2"].RoleID, "first group path wins")
}

func TestCompute_InsertsMissing(t *testing.T) {
	existing := []Row{{UserID: "owner", RoleID: "clairvoyant-one", Level: top, Direct: true}}
	required := Required([]Path{
		{UserID: "owner", RoleID: "clairvoyant-one", Level: top, Direct: true},
		{UserID: "u1", RoleID: "analyst", Level: 50},
		{UserID: "u2", RoleID: "analyst", Level: 50},
	})

	plan := Compute(existing, required, top)

	require.Len(t, plan.Insert, 2)
	assert.Equal(t, "u1", plan.Insert[0].UserID)
	assert.Equal(t, "u2", plan.Insert[1].UserID)
	assert.Empty(t, plan.Delete)
	assert.Empty(t, plan.Keep)
}

func TestCompute_NoDuplicates(t *testing.T) {
	existing := []Row{
		{UserID: "owner", Level: top, Direct: true},
		{UserID: "u1", Level: 50, Direct: true},
	}
	required := Required([]Path{
		{UserID: "owner", Level: top, Direct: true},
		{UserID: "u1", Level: 50, Direct: true},
		{UserID: "u1", Level: 50},
	})

	plan := Compute(existing, required, top)
	assert.True(t, plan.Empty(), "user reachable twice must not be inserted again: %+v", plan)
}

func TestCompute_DeletesUnreachable(t *testing.T) {
	existing := []Row{
		{UserID: "owner", Level: top, Direct: true},
		{UserID: "u1", Level: 50},
		{UserID: "u2", Level: 50},
	}
	required := Required([]Path{
		{UserID: "owner", Level: top, Direct: true},
		{UserID: "u2", Level: 50},
	})

	plan := Compute(existing, required, top)
	assert.Equal(t, []string{"u1"}, plan.Delete)
	assert.Empty(t, plan.Insert)
}

func TestCompute_KeepsLastTopAuthority(t *testing.T) {
	existing := []Row{
		{UserID: "boss", Level: top},
		{UserID: "u1", Level: 50},
	}

	plan := Compute(existing, map[string]Path{}, top)

	assert.Equal(t, []string{"u1"}, plan.Delete)
	assert.Equal(t, []string{"boss"}, plan.Keep)
}

func TestCompute_KeepsAllTopHoldersWhenNoneSurvive(t *testing.T) {
	existing := []Row{
		{UserID: "b2", Level: top},
		{UserID: "b1", Level: top},
	}

	plan := Compute(existing, map[string]Path{}, top)

	assert.Empty(t, plan.Delete)
	assert.Equal(t, []string{"b1", "b2"}, plan.Keep)
}

func TestCompute_DeletesTopHolderWhenAnotherSurvives(t *testing.T) {
	existing := []Row{
		{UserID: "b1", Level: top, Direct: true},
		{UserID: "b2", Level: top},
	}
	required := Required([]Path{{UserID: "b1", Level: top, Direct: true}})

	plan := Compute(existing, required, top)

	assert.Equal(t, []string{"b2"}, plan.Delete)
	assert.Empty(t, plan.Keep)
}

func TestCompute_InsertedTopHolderCountsAsSurvivor(t *testing.T) {
	existing := []Row{{UserID: "b1", Level: top}}
	required := Required([]Path{{UserID: "b2", Level: top}})

	plan := Compute(existing, required, top)

	assert.Equal(t, []string{"b1"}, plan.Delete)
	require.Len(t, plan.Insert, 1)
	assert.Equal(t, "b2", plan.Insert[0].UserID)
}

// Property: after applying a plan, the member set equals the required set,
// apart from protected top-authority rows.
func TestCompute_ReachabilityProperty(t *testing.T) {
	users := []string{"a", "b", "c", "d", "e"}
	for mask := 0; mask < 1<<len(users); mask++ {
		for reqMask := 0; reqMask < 1<<len(users); reqMask++ {
			var existing []Row
			var paths []Path
			for i, u := range users {
				if mask&(1<<i) != 0 {
					existing = append(existing, Row{UserID: u, Level: 50})
				}
				if reqMask&(1<<i) != 0 {
					paths = append(paths, Path{UserID: u, Level: 50})
				}
			}
			required := Required(paths)
			plan := Compute(existing, required, top)

			after := map[string]bool{}
			for _, r := range existing {
				after[r.UserID] = true
			}
			for _, uid := range plan.Delete {
				delete(after, uid)
			}
			for _, p := range plan.Insert {
				after[p.UserID] = true
			}

			if len(after) != len(required) {
				t.Fatalf("mask=%b req=%b: got %d members, want %d", mask, reqMask, len(after), len(required))
			}
			for uid := range required {
				if !after[uid] {
					t.Fatalf("mask=%b req=%b: %s missing", mask, reqMask, uid)
				}
			}
		}
	}
}
