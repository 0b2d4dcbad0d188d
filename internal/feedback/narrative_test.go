package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashNarrative_LowercasesOnlyForEnglishLocale(t *testing.T) {
	en := "en"
	de := "de"

	enHash := hashNarrative(&en, "Patient Reports Mild Fever")
	deHash := hashNarrative(&de, "Patient Reports Mild Fever")

	enLowerHash := hashNarrative(&en, "patient reports mild fever")
	assert.Equal(t, enHash, enLowerHash, "english locale narratives should lowercase before hashing")

	deLowerHash := hashNarrative(&de, "patient reports mild fever")
	assert.NotEqual(t, deHash, deLowerHash, "non-english locales must not lowercase")
}

func TestHashNarrative_CollapsesWhitespaceAndTrims(t *testing.T) {
	en := "en"
	a := hashNarrative(&en, "  mild   fever  and cough ")
	b := hashNarrative(&en, "mild fever and cough")
	assert.Equal(t, a, b)
}

func TestHashNarrative_UnknownLocaleWhenNil(t *testing.T) {
	withNil := hashNarrative(nil, "fever")
	empty := ""
	withEmpty := hashNarrative(&empty, "fever")
	unknown := "unknown"
	withUnknown := hashNarrative(&unknown, "fever")

	assert.Equal(t, withNil, withEmpty, "a nil locale and an empty-string locale both fall back to \"unknown\"")
	assert.Equal(t, withNil, withUnknown, "an explicit \"unknown\" locale hashes the same as the fallback")
}

func TestHashNarrative_DeterministicAndHex64(t *testing.T) {
	en := "en"
	h := hashNarrative(&en, "fever")
	assert.Len(t, h, 64)
	assert.Equal(t, h, hashNarrative(&en, "fever"))
}
