// Package roster groups personnel by unit and applies the unit filter.
package roster

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/okian/trainingbot/internal/domain/dedupe"
	"github.com/okian/trainingbot/internal/domain/model"
)

// Unit is one apparatus or crew and its staff.
type Unit struct {
	Name      string                  `json:"name"`
	Personnel []model.PersonnelRecord `json:"personnel"`
}

// Roster is the feed's unit list in feed order.
type Roster struct {
	Units []Unit `json:"units"`
}

// UnitNames returns the unit names sorted alphabetically.
func (r Roster) UnitNames() []string {
	names := make([]string, 0, len(r.Units))
	for _, u := range r.Units {
		names = append(names, u.Name)
	}
	sort.Strings(names)
	return names
}

// Size is the number of staff entries across all units, duplicates included.
func (r Roster) Size() int {
	n := 0
	for _, u := range r.Units {
		n += len(u.Personnel)
	}
	return n
}

// Select returns the personnel of the given units, or of every unit when
// units is empty. Unit names match case-insensitively. A person listed under
// several units is kept once, under the first unit in feed order. The result
// is sorted by name.
func (r Roster) Select(ctx context.Context, units []string) []model.PersonnelRecord {
	want := make([]string, 0, len(units))
	for _, u := range units {
		if u = strings.TrimSpace(u); u != "" {
			want = append(want, strings.ToLower(u))
		}
	}

	seen := dedupe.NewInMemoryDeduper()
	var out []model.PersonnelRecord
	for _, u := range r.Units {
		if len(want) > 0 && !slices.Contains(want, strings.ToLower(u.Name)) {
			continue
		}
		for _, p := range u.Personnel {
			if seen.SeenAndRecord(ctx, dedupe.Key(p.Key())) {
				continue
			}
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Missing returns the requested units the roster does not contain.
func (r Roster) Missing(units []string) []string {
	have := make(map[string]bool, len(r.Units))
	for _, u := range r.Units {
		have[strings.ToLower(u.Name)] = true
	}
	var out []string
	for _, u := range units {
		if u = strings.TrimSpace(u); u != "" && !have[strings.ToLower(u)] {
			out = append(out, u)
		}
	}
	return out
}
