package consensus

import (
	"strings"

	"github.com/desertthunder/mixtape/internal/shared"
)

// EventClassifier decides whether a request describes a festival, line-up or similar event.
type EventClassifier interface {
	IsEvent(text string) bool
}

// KeywordClassifier matches normalized text against keyword and event-name lists.
// A term matches at a word start, so "tour 20" catches "tour 2024" but "stage" does not catch "backstage".
type KeywordClassifier struct {
	terms []string
}

// NewKeywordClassifier builds a classifier from the [events] config section.
func NewKeywordClassifier(cfg shared.EventsConfig) *KeywordClassifier {
	var terms []string
	for _, t := range append(append([]string{}, cfg.Keywords...), cfg.Names...) {
		if n := shared.NormalizeName(t); n != "" {
			terms = append(terms, n)
		}
	}
	return &KeywordClassifier{terms: terms}
}

func (k *KeywordClassifier) IsEvent(text string) bool {
	normalized := " " + shared.NormalizeName(text)
	for _, term := range k.terms {
		if strings.Contains(normalized, " "+term) {
			return true
		}
	}
	return false
}

// NeverEvent classifies nothing as an event.
type NeverEvent struct{}

func (NeverEvent) IsEvent(string) bool { return false }
