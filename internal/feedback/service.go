package feedback

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/mcare/mcare-backend/internal/tenancy"
	"github.com/mcare/mcare-backend/pkg/errors"
)

// Service implements feedback insertion and windowed aggregation.
type Service struct {
	repo    *Repository
	gateway *tenancy.Gateway
}

// NewService wires the feedback repository against the tenancy gateway.
func NewService(repo *Repository, gateway *tenancy.Gateway) *Service {
	return &Service{repo: repo, gateway: gateway}
}

// Insert validates the predicted_top3 shape, hashes any supplied
// narrative, and appends the row. The raw narrative is never persisted;
// is_correct is computed and returned, never stored.
func (s *Service) Insert(ctx context.Context, tenantID string, in InsertInput) (*InsertResult, error) {
	if len(in.PredictedTop3) == 0 {
		return nil, errors.Validation(map[string]string{"predicted_top3": "must be a non-empty array"})
	}
	if in.PredictedTop1 == "" {
		return nil, errors.Validation(map[string]string{"predicted_top1": "must not be empty"})
	}
	if in.ChosenRemedy == "" {
		return nil, errors.Validation(map[string]string{"chosen_remedy": "must not be empty"})
	}
	if in.OutcomeScore != nil && (*in.OutcomeScore < 1 || *in.OutcomeScore > 10) {
		return nil, errors.Validation(map[string]string{"outcome_score": "must be between 1 and 10"})
	}

	var narrativeHash *string
	if in.Narrative != nil && *in.Narrative != "" {
		h := hashNarrative(in.Locale, *in.Narrative)
		narrativeHash = &h
	}

	var rec *Record
	err := s.gateway.Run(ctx, tenantID, func(tenantCtx context.Context) error {
		var insertErr error
		rec, insertErr = s.repo.Insert(tenantCtx, tenantID, in, narrativeHash)
		return insertErr
	})
	if err != nil {
		return nil, err
	}

	return &InsertResult{
		Record:    rec,
		IsCorrect: in.ChosenRemedy == in.PredictedTop1,
	}, nil
}

// Summary aggregates feedback over the last `days` days for tenantID.
// days must be within [1, 365].
func (s *Service) Summary(ctx context.Context, tenantID string, days int) (*Summary, error) {
	if days < 1 || days > 365 {
		return nil, errors.BadRequest("days must be between 1 and 365")
	}

	var rows []Record
	err := s.gateway.Run(ctx, tenantID, func(tenantCtx context.Context) error {
		var listErr error
		rows, listErr = s.repo.ListWindow(tenantCtx, days)
		return listErr
	})
	if err != nil {
		return nil, err
	}

	return summarize(rows), nil
}

func summarize(rows []Record) *Summary {
	summary := &Summary{
		OutcomeCounts: make(map[string]int),
	}

	type mismatchKey struct {
		top1   string
		chosen string
	}
	mismatchCounts := make(map[mismatchKey]int)

	var top1Matches, top3Matches int
	for _, rec := range rows {
		summary.TotalCount++
		summary.OutcomeCounts[rec.OutcomeType]++

		if rec.ChosenRemedy == rec.PredictedTop1 {
			top1Matches++
		} else {
			mismatchCounts[mismatchKey{top1: rec.PredictedTop1, chosen: rec.ChosenRemedy}]++
		}

		var top3 []string
		if err := json.Unmarshal(rec.PredictedTop3, &top3); err == nil {
			for _, remedy := range top3 {
				if remedy == rec.ChosenRemedy {
					top3Matches++
					break
				}
			}
		}
	}

	if summary.TotalCount > 0 {
		summary.Top1Accuracy = float64(top1Matches) / float64(summary.TotalCount)
		summary.Top3Coverage = float64(top3Matches) / float64(summary.TotalCount)
	}

	pairs := make([]MismatchPair, 0, len(mismatchCounts))
	for key, count := range mismatchCounts {
		pairs = append(pairs, MismatchPair{PredictedTop1: key.top1, ChosenRemedy: key.chosen, Count: count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		if pairs[i].PredictedTop1 != pairs[j].PredictedTop1 {
			return pairs[i].PredictedTop1 < pairs[j].PredictedTop1
		}
		return pairs[i].ChosenRemedy < pairs[j].ChosenRemedy
	})
	if len(pairs) > 10 {
		pairs = pairs[:10]
	}
	summary.TopMismatches = pairs

	return summary
}
