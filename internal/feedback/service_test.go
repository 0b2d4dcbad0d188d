package feedback

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func top3(remedies ...string) json.RawMessage {
	b, err := json.Marshal(remedies)
	if err != nil {
		panic(err)
	}
	return b
}

func TestSummarize_AccuracyAndCoverage(t *testing.T) {
	rows := []Record{
		{PredictedTop1: "arnica", PredictedTop3: top3("arnica", "belladonna"), ChosenRemedy: "arnica", OutcomeType: OutcomeAgree},
		{PredictedTop1: "arnica", PredictedTop3: top3("arnica", "belladonna"), ChosenRemedy: "belladonna", OutcomeType: OutcomeDisagree},
		{PredictedTop1: "arnica", PredictedTop3: top3("arnica", "belladonna"), ChosenRemedy: "bryonia", OutcomeType: OutcomeDisagree},
	}

	summary := summarize(rows)

	assert.Equal(t, 3, summary.TotalCount)
	assert.InDelta(t, 1.0/3.0, summary.Top1Accuracy, 1e-9)
	assert.InDelta(t, 2.0/3.0, summary.Top3Coverage, 1e-9)
	assert.Equal(t, 1, summary.OutcomeCounts[OutcomeAgree])
	assert.Equal(t, 2, summary.OutcomeCounts[OutcomeDisagree])
}

func TestSummarize_TopMismatchesOrderedByFrequencyDesc(t *testing.T) {
	rows := []Record{
		{PredictedTop1: "arnica", PredictedTop3: top3("arnica"), ChosenRemedy: "belladonna", OutcomeType: OutcomeDisagree},
		{PredictedTop1: "arnica", PredictedTop3: top3("arnica"), ChosenRemedy: "belladonna", OutcomeType: OutcomeDisagree},
		{PredictedTop1: "arnica", PredictedTop3: top3("arnica"), ChosenRemedy: "bryonia", OutcomeType: OutcomeDisagree},
	}

	summary := summarize(rows)

	require.Len(t, summary.TopMismatches, 2)
	assert.Equal(t, MismatchPair{PredictedTop1: "arnica", ChosenRemedy: "belladonna", Count: 2}, summary.TopMismatches[0])
	assert.Equal(t, "bryonia", summary.TopMismatches[1].ChosenRemedy)
}

func TestSummarize_CapsTopMismatchesAtTen(t *testing.T) {
	rows := make([]Record, 0, 12)
	for i := 0; i < 12; i++ {
		remedy := string(rune('a' + i))
		rows = append(rows, Record{
			PredictedTop1: "arnica",
			PredictedTop3: top3("arnica"),
			ChosenRemedy:  remedy,
			OutcomeType:   OutcomeDisagree,
		})
	}

	summary := summarize(rows)

	assert.Len(t, summary.TopMismatches, 10)
}

func TestSummarize_EmptyWindow(t *testing.T) {
	summary := summarize(nil)

	assert.Equal(t, 0, summary.TotalCount)
	assert.Equal(t, 0.0, summary.Top1Accuracy)
	assert.Equal(t, 0.0, summary.Top3Coverage)
	assert.Empty(t, summary.TopMismatches)
}
