package tasks

import (
	"regexp"
	"strings"

	"github.com/desertthunder/mixtape/internal/shared"
)

// Signals are artist names read directly from the request text.
type Signals struct {
	Banned      []string `json:"banned,omitempty"`
	Recommended []string `json:"recommended,omitempty"`
}

// TextSignalExtractor reads banned and recommended artists out of free text.
type TextSignalExtractor interface {
	Extract(text string) Signals
}

// NoSignals extracts nothing.
type NoSignals struct{}

func (NoSignals) Extract(string) Signals { return Signals{} }

var (
	banTrigger = regexp.MustCompile(`(?i)\b(?:no|not|without|except|excluding|exclude|avoid|avoiding|minus|skip)\s+`)
	recTrigger = regexp.MustCompile(`(?i)\b(?:sounds?\s+like|similar\s+to|in\s+the\s+style\s+of|inspired\s+by|artists?\s+like|songs?\s+like|music\s+like|vibes?\s+like|like)\s+`)
	boundary   = regexp.MustCompile(`(?i)[.;:!?\n()]|\s+(?:but|with|for|from|please|that|which|who|while|then)\s+|\s+and\s+(?:no|not|without|some|more|also)\s+`)
	listSep    = regexp.MustCompile(`(?i)\s*,\s*(?:and\s+|or\s+)?|\s+or\s+|\s+nor\s+`)
	leadFiller = regexp.MustCompile(`(?i)^(?:include|including|any|anything|songs?|tracks?|music|stuff|by|from|of|the\s+likes\s+of)\s+`)
	tailFiller = regexp.MustCompile(`(?i)\s+(?:songs?|tracks?|music|stuff|please|at\s+all|either|too)$`)
)

// Words that follow a trigger without naming an artist ("no more than", "not too slow").
var genericWords = map[string]struct{}{
	"more": {}, "less": {}, "too": {}, "very": {}, "so": {}, "much": {}, "than": {}, "a": {}, "an": {},
	"explicit": {}, "slow": {}, "fast": {}, "sad": {}, "happy": {}, "loud": {}, "quiet": {},
	"repeats": {}, "repeat": {}, "duplicates": {}, "covers": {}, "remixes": {}, "live": {},
	"ballads": {}, "one": {}, "two": {}, "longer": {}, "shorter": {}, "old": {}, "new": {},
	"this": {}, "that": {}, "it": {}, "them": {}, "other": {}, "same": {}, "these": {}, "those": {},
	"songs": {}, "song": {}, "tracks": {}, "music": {}, "lyrics": {}, "vocals": {}, "instrumentals": {},
	"sure": {}, "only": {}, "just": {}, "really": {}, "anything": {}, "something": {},
}

// Words before a bare "like" that make it a verb ("I'd like some jazz").
var likeVerbs = map[string]struct{}{
	"i": {}, "i'd": {}, "id": {}, "would": {}, "we'd": {}, "you'd": {}, "i’d": {}, "feel": {}, "really": {}, "we": {}, "they": {}, "you": {},
}

// PatternExtractor is the default [TextSignalExtractor].
//
// It recognises phrases such as "no X", "without X", "except X", "avoid X" for
// banned artists and "like X", "similar to X", "sounds like X" for recommended
// ones. Lists ("no X, Y or Z") yield one name each. "like X but not X" yields X
// in both lists.
type PatternExtractor struct{}

func (PatternExtractor) Extract(text string) Signals {
	return Signals{
		Banned:      namesAfter(text, banTrigger, nil),
		Recommended: namesAfter(text, recTrigger, isLikeVerb),
	}
}

func isLikeVerb(text string, start, end int) bool {
	if !strings.EqualFold(strings.TrimSpace(text[start:end]), "like") {
		return false
	}
	before := strings.Fields(strings.ToLower(text[:start]))
	if len(before) == 0 {
		return false
	}
	_, ok := likeVerbs[before[len(before)-1]]
	return ok
}

func namesAfter(text string, trigger *regexp.Regexp, skip func(text string, start, end int) bool) []string {
	var names []string
	seen := make(map[string]struct{})

	for _, loc := range trigger.FindAllStringIndex(text, -1) {
		if skip != nil && skip(text, loc[0], loc[1]) {
			continue
		}
		phrase := text[loc[1]:]
		if b := boundary.FindStringIndex(phrase); b != nil {
			phrase = phrase[:b[0]]
		}
		for _, next := range []*regexp.Regexp{banTrigger, recTrigger} {
			if loc := next.FindStringIndex(phrase); loc != nil {
				phrase = phrase[:loc[0]]
			}
		}

		for _, part := range listSep.Split(phrase, -1) {
			name := cleanName(part)
			key := shared.NormalizeName(name)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

func cleanName(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'“”‘’`)
	for {
		trimmed := tailFiller.ReplaceAllString(leadFiller.ReplaceAllString(s, ""), "")
		if trimmed == s {
			break
		}
		s = trimmed
	}
	s = strings.Trim(strings.TrimSpace(s), `"'“”‘’`)

	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 5 {
		return ""
	}
	if _, generic := genericWords[strings.ToLower(words[0])]; generic {
		return ""
	}
	return s
}
