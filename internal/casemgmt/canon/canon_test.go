package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_FixedKeyOrderAndSeparators(t *testing.T) {
	rows := []RankRow{
		{Rank: 1, Remedy: "arnica", Score: 0.91},
		{Rank: 2, Remedy: "belladonna", Score: 0.5},
	}

	got := Encode(rows)

	assert.Equal(t,
		`[{"rank":1,"remedy":"arnica","score":0.91},{"rank":2,"remedy":"belladonna","score":0.5}]`,
		string(got))
}

func TestEncode_IntegralScoreGetsDotZeroSuffix(t *testing.T) {
	rows := []RankRow{{Rank: 1, Remedy: "arnica", Score: 1}}

	got := Encode(rows)

	assert.Equal(t, `[{"rank":1,"remedy":"arnica","score":1.0}]`, string(got))
}

func TestEncode_EmptyList(t *testing.T) {
	assert.Equal(t, "[]", string(Encode(nil)))
}

func TestEncode_EscapesQuoteAndBackslash(t *testing.T) {
	rows := []RankRow{{Rank: 1, Remedy: `quo"te\back`, Score: 1.25}}

	got := Encode(rows)

	assert.Equal(t, `[{"rank":1,"remedy":"quo\"te\\back","score":1.25}]`, string(got))
}

func TestEncode_PreservesNonASCIIWithoutUnicodeEscaping(t *testing.T) {
	rows := []RankRow{{Rank: 1, Remedy: "Kalium bichromicum – Ärnica", Score: 0.1}}

	got := Encode(rows)

	assert.Contains(t, string(got), "Ärnica")
}

func TestEncode_IsDeterministicAcrossCalls(t *testing.T) {
	rows := []RankRow{
		{Rank: 1, Remedy: "arnica", Score: 0.913000001},
		{Rank: 2, Remedy: "belladonna", Score: 0.5},
	}

	first := Encode(rows)
	second := Encode(rows)
	require.Equal(t, first, second)

	sum1 := sha256.Sum256(first)
	sum2 := sha256.Sum256(second)
	assert.Equal(t, hex.EncodeToString(sum1[:]), hex.EncodeToString(sum2[:]))
}
