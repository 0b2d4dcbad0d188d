// Package scoring defines the narrow boundary between case finalization
// and whatever produces a ranking. The adapter is assumed pure: same
// case id, inputs, params, and seed always produce the same ranking, and
// feedback never flows back into it.
package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"math/rand"
	"sort"

	"github.com/mcare/mcare-backend/internal/casemgmt/canon"
)

// Adapter produces an ordered, deterministic ranking for a case.
type Adapter interface {
	Score(ctx context.Context, caseID string, inputPayload, params json.RawMessage, seed string) ([]canon.RankRow, error)
}

// remedyVocabulary is the illustrative fixed universe the stub draws
// from. A real adapter would replace this entirely; nothing else in this
// repo depends on its contents beyond "a nonempty ranking of remedies".
var remedyVocabulary = []string{
	"arnica-montana",
	"belladonna",
	"bryonia-alba",
	"nux-vomica",
	"pulsatilla",
	"rhus-toxicodendron",
	"gelsemium",
	"ignatia-amara",
}

// DeterministicStub derives a small fixed ranking from a seeded PRNG.
// It is illustrative only: a placeholder for whatever clinical scoring
// engine a real deployment would plug in behind the same interface.
type DeterministicStub struct{}

// NewDeterministicStub constructs the stub adapter.
func NewDeterministicStub() *DeterministicStub {
	return &DeterministicStub{}
}

// Score is deterministic in its four inputs: the PRNG seed is derived by
// hashing inputPayload and seed together, never by consulting wall-clock
// time or any other hidden state.
func (DeterministicStub) Score(ctx context.Context, caseID string, inputPayload, params json.RawMessage, seed string) ([]canon.RankRow, error) {
	sum := sha256.Sum256(append(append([]byte{}, inputPayload...), []byte(seed)...))
	prngSeed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(prngSeed))

	type scored struct {
		remedy string
		score  float64
	}
	candidates := make([]scored, len(remedyVocabulary))
	for i, remedy := range remedyVocabulary {
		candidates[i] = scored{remedy: remedy, score: rng.Float64()}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].remedy < candidates[j].remedy
	})

	top := candidates
	if len(top) > 5 {
		top = top[:5]
	}

	rows := make([]canon.RankRow, len(top))
	for i, c := range top {
		rows[i] = canon.RankRow{Rank: i + 1, Remedy: c.remedy, Score: c.score}
	}
	return rows, nil
}
