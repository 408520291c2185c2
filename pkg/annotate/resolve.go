package annotate

import (
	"strconv"
	"strings"
)

// MatchType indicates how a citation title was matched to a source record.
type MatchType string

// Match types, from strongest to weakest.
const (
	MatchTitleContains MatchType = "title_contains" // record title contains the raw citation title
	MatchTitlePrefix   MatchType = "title_prefix"   // raw citation title contains the record title's prefix
	MatchFallbackFirst MatchType = "fallback_first" // nothing matched, first registry record used
	MatchNone          MatchType = "none"           // registry empty, citation renders inert
)

// titlePrefixLen is how many leading characters of a record title the
// prefix match considers. Tolerates citation titles truncated on either
// side without matching on a single shared word.
const titlePrefixLen = 10

// ResolvedCitation is a citation token resolved against a registry.
// SourceID is empty when the registry is empty; the presentation layer
// must treat that as not clickable rather than attempting a seek.
// DisplayMinutes and DisplaySeconds keep the digits exactly as written so
// an inert citation still shows its original timestamp label.
type ResolvedCitation struct {
	SourceID        string    `json:"source_id"`
	AbsoluteSeconds int       `json:"absolute_seconds"`
	DisplayMinutes  string    `json:"display_minutes"`
	DisplaySeconds  string    `json:"display_seconds"`
	Match           MatchType `json:"match"`
}

// ResolveCitation maps a citation token to a concrete source and absolute
// playback offset. The registry is searched in order for the first record
// whose title contains the raw citation title, or whose raw citation title
// contains the record title's first characters (two-way partial
// containment, tolerating truncation in either direction). When nothing
// matches, a non-empty registry resolves to its first record; an empty
// registry yields an empty source id. ResolveCitation never fails.
//
// First match wins with no scoring or disambiguation between multiple
// plausible titles. Stronger matching could silently change which video a
// citation jumps to, so the rule stays as weak as it is.
func ResolveCitation(token InlineToken, registry Registry) ResolvedCitation {
	minutes, _ := strconv.Atoi(token.Minutes)
	seconds, _ := strconv.Atoi(token.Seconds)

	resolved := ResolvedCitation{
		AbsoluteSeconds: minutes*60 + seconds,
		DisplayMinutes:  token.Minutes,
		DisplaySeconds:  token.Seconds,
	}

	for _, rec := range registry {
		if strings.Contains(rec.Title, token.RawTitle) {
			resolved.SourceID = rec.ID
			resolved.Match = MatchTitleContains
			return resolved
		}
		if strings.Contains(token.RawTitle, titlePrefix(rec.Title)) {
			resolved.SourceID = rec.ID
			resolved.Match = MatchTitlePrefix
			return resolved
		}
	}

	if len(registry) > 0 {
		resolved.SourceID = registry[0].ID
		resolved.Match = MatchFallbackFirst
		return resolved
	}

	resolved.Match = MatchNone
	return resolved
}

// titlePrefix returns the first titlePrefixLen runes of a record title, or
// the whole title when it is shorter.
func titlePrefix(title string) string {
	runes := []rune(title)
	if len(runes) <= titlePrefixLen {
		return title
	}
	return string(runes[:titlePrefixLen])
}
