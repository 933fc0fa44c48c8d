// Package assign pairs every person with one training module.
package assign

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/okian/trainingbot/internal/domain/model"
)

// Policy names.
const (
	PolicyUniform  = "uniform"
	PolicyBalanced = "balanced"
	PolicyFresh    = "fresh"
)

const (
	dateLayout = "2006-01-02"
	seedModulo = 1<<31 - 1
)

// History returns the most recent module id assigned to each person.
// Persons without history are absent from the map.
type History interface {
	LastModules(ctx context.Context, personnelIDs []string) (map[string]string, error)
}

// Randomizer assigns modules to personnel. The zero seed derives the seed
// from the run date so the same day yields the same assignments.
type Randomizer struct {
	policy  string
	seed    int64
	history History
	newID   func() string
}

// NewRandomizer creates a Randomizer with the uniform policy by default.
func NewRandomizer(opts ...Option) *Randomizer {
	r := &Randomizer{
		policy: PolicyUniform,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured policy name.
func (r *Randomizer) Policy() string { return r.policy }

// DateSeed derives the seed for a run date: SHA-256 of the ISO date modulo
// 2^31-1.
func DateSeed(runDate time.Time) int64 {
	sum := sha256.Sum256([]byte(runDate.Format(dateLayout)))
	n := new(big.Int).SetBytes(sum[:])
	return n.Mod(n, big.NewInt(seedModulo)).Int64()
}

// Assign returns exactly one assignment per person, in personnel order. Every
// assignment references one of modules. An empty module set is an error; an
// empty personnel set yields no assignments.
func (r *Randomizer) Assign(ctx context.Context, runID string, runDate time.Time, modules []model.TrainingModule, personnel []model.PersonnelRecord) ([]model.Assignment, error) {
	if len(modules) == 0 {
		return nil, ErrNoModules
	}
	if len(personnel) == 0 {
		return []model.Assignment{}, nil
	}

	seed := r.seed
	if seed == 0 {
		seed = DateSeed(runDate)
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible per run date, not security sensitive

	var picks []int
	switch r.policy {
	case PolicyUniform:
		picks = uniform(rng, len(modules), len(personnel))
	case PolicyBalanced:
		picks = balanced(rng, len(modules), len(personnel))
	case PolicyFresh:
		var err error
		picks, err = r.fresh(ctx, rng, modules, personnel)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, r.policy)
	}

	out := make([]model.Assignment, len(personnel))
	for i, p := range personnel {
		out[i] = model.Assignment{
			ID:        r.newID(),
			RunID:     runID,
			RunDate:   runDate,
			Policy:    r.policy,
			Personnel: p,
			Module:    modules[picks[i]],
		}
	}
	return out, nil
}

// uniform picks a module independently for each person.
func uniform(rng *rand.Rand, modules, people int) []int {
	picks := make([]int, people)
	for i := range picks {
		picks[i] = rng.Intn(modules)
	}
	return picks
}

// balanced deals shuffled modules round-robin over shuffled personnel, so
// module usage counts differ by at most one.
func balanced(rng *rand.Rand, modules, people int) []int {
	order := rng.Perm(people)
	deck := rng.Perm(modules)
	picks := make([]int, people)
	for i, person := range order {
		picks[person] = deck[i%modules]
	}
	return picks
}

// fresh avoids each person's most recent module when another one exists.
func (r *Randomizer) fresh(ctx context.Context, rng *rand.Rand, modules []model.TrainingModule, personnel []model.PersonnelRecord) ([]int, error) {
	last := map[string]string{}
	if r.history != nil {
		ids := make([]string, len(personnel))
		for i, p := range personnel {
			ids[i] = p.ID
		}
		got, err := r.history.LastModules(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
		}
		last = got
	}

	picks := make([]int, len(personnel))
	candidates := make([]int, 0, len(modules))
	for i, p := range personnel {
		candidates = candidates[:0]
		prev, ok := last[p.ID]
		for m := range modules {
			if !ok || modules[m].ID != prev {
				candidates = append(candidates, m)
			}
		}
		if len(candidates) == 0 {
			picks[i] = rng.Intn(len(modules))
			continue
		}
		picks[i] = candidates[rng.Intn(len(candidates))]
	}
	return picks, nil
}
