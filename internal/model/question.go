package model

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

// Tier is the complexity classification of a natural-language question.
// Tiers are totally ordered: Simple < Medium < Hard.
type Tier int

const (
	TierSimple Tier = iota + 1
	TierMedium
	TierHard
)

// AllTiers returns the tiers in ascending order.
func AllTiers() []Tier {
	return []Tier{TierSimple, TierMedium, TierHard}
}

func (t Tier) String() string {
	switch t {
	case TierSimple:
		return "simple"
	case TierMedium:
		return "medium"
	case TierHard:
		return "hard"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the tier by name in API responses and logs.
func (t Tier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// Question is a validated natural-language question.
type Question struct {
	Text string `json:"text"`
}

// minQuestionLen is the minimum number of characters after trimming.
const minQuestionLen = 3

// NewQuestion validates raw user input. The text must be non-empty after
// trimming, at least three characters long, and contain at least one
// letter. Garbled input is rejected here so the pipeline never starts an
// attempt for it.
func NewQuestion(raw string) (Question, error) {
	text := strings.TrimSpace(raw)
	if len(text) < minQuestionLen {
		return Question{}, eris.New("model: question too short")
	}
	hasLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return Question{}, eris.New("model: question contains no letters")
	}
	return Question{Text: text}, nil
}
