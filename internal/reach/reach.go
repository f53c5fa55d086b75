// Package reach computes project membership changes as set differences.
//
// A user must hold a membership in a project when they are a direct member or
// belong to any user group attached to the project. Plan compares that required
// set against the existing membership rows and returns the rows to insert and
// delete, so a caller can apply the whole change in one transaction.
package reach

import "sort"

// Row is an existing membership row.
type Row struct {
	UserID string
	RoleID string
	Level  int
	Direct bool
}

// Path is one reason a user must be a project member.
type Path struct {
	UserID string
	RoleID string
	Level  int
	Direct bool
}

// Plan is the set of changes that brings existing rows in line with the required set.
type Plan struct {
	Insert []Path
	Delete []string
	// Keep lists users whose rows would have been deleted but hold the highest
	// authority level and are the last such holders. Their rows are converted
	// to direct memberships.
	Keep []string
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Insert) == 0 && len(p.Delete) == 0 && len(p.Keep) == 0
}

// Required folds paths into one path per user. A direct path wins over group
// paths; among group paths the first one listed wins.
func Required(paths []Path) map[string]Path {
	out := make(map[string]Path, len(paths))
	for _, p := range paths {
		cur, ok := out[p.UserID]
		if !ok || (p.Direct && !cur.Direct) {
			out[p.UserID] = p
		}
	}
	return out
}

// Compute diffs existing rows against the required paths. topLevel is the
// highest authority level among all project roles.
func Compute(existing []Row, required map[string]Path, topLevel int) Plan {
	var plan Plan

	have := make(map[string]Row, len(existing))
	for _, r := range existing {
		have[r.UserID] = r
	}

	topSurvivors := 0
	var topDoomed []string
	for _, r := range existing {
		if _, ok := required[r.UserID]; ok {
			if r.Level >= topLevel {
				topSurvivors++
			}
			continue
		}
		if r.Level >= topLevel {
			topDoomed = append(topDoomed, r.UserID)
			continue
		}
		plan.Delete = append(plan.Delete, r.UserID)
	}

	for uid, p := range required {
		if _, ok := have[uid]; ok {
			continue
		}
		plan.Insert = append(plan.Insert, p)
		if p.Level >= topLevel {
			topSurvivors++
		}
	}

	if topSurvivors > 0 {
		plan.Delete = append(plan.Delete, topDoomed...)
	} else {
		plan.Keep = topDoomed
	}

	sort.Strings(plan.Delete)
	sort.Strings(plan.Keep)
	sort.Slice(plan.Insert, func(i, j int) bool { return plan.Insert[i].UserID < plan.Insert[j].UserID })
	return plan
}
