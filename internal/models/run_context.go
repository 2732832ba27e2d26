package models

import (
	"github.com/desertthunder/mixtape/internal/shared"
)

// RunContext is the mutable state of one generation run.
//
// The orchestrator is its only writer; tools receive it to read constraints and
// to record accepted track IDs. It is never persisted.
type RunContext struct {
	Request   string
	Target    int
	Market    string
	Requested []string

	tracks   []Track
	inList   map[string]struct{}
	used     map[string]struct{}
	banned   map[string]struct{}
	priority map[string]struct{}
}

// NewRunContext builds an empty run for target tracks.
func NewRunContext(request string, target int, market string) *RunContext {
	return &RunContext{
		Request:  request,
		Target:   target,
		Market:   market,
		inList:   make(map[string]struct{}),
		used:     make(map[string]struct{}),
		banned:   make(map[string]struct{}),
		priority: make(map[string]struct{}),
	}
}

// Tracks returns a copy of the accumulated list.
func (rc *RunContext) Tracks() []Track {
	out := make([]Track, len(rc.tracks))
	copy(out, rc.tracks)
	return out
}

// Len is the number of accumulated tracks.
func (rc *RunContext) Len() int { return len(rc.tracks) }

// Gap is how many tracks are still missing, never negative.
func (rc *RunContext) Gap() int {
	if g := rc.Target - len(rc.tracks); g > 0 {
		return g
	}
	return 0
}

// IsUsed reports whether a track ID has already been accepted.
func (rc *RunContext) IsUsed(id string) bool {
	_, ok := rc.used[id]
	return ok
}

// MarkUsed records id as accepted.
func (rc *RunContext) MarkUsed(id string) {
	if id != "" {
		rc.used[id] = struct{}{}
	}
}

// Ban adds artist names to the banned set.
func (rc *RunContext) Ban(names ...string) {
	for k := range shared.NameSet(names...) {
		rc.banned[k] = struct{}{}
	}
}

// IsBanned reports whether the artist name is banned.
func (rc *RunContext) IsBanned(name string) bool {
	_, ok := rc.banned[shared.NormalizeName(name)]
	return ok
}

// HasBannedArtist reports whether any contributor of t is banned.
func (rc *RunContext) HasBannedArtist(t Track) bool {
	for _, a := range t.Artists {
		if rc.IsBanned(a.Name) {
			return true
		}
	}
	return false
}

// Banned returns the normalized banned names.
func (rc *RunContext) Banned() []string {
	return setKeys(rc.banned)
}

// BannedSet exposes the banned set for read-only checks.
func (rc *RunContext) BannedSet() map[string]struct{} {
	return rc.banned
}

// AddPriority marks artist names as priority artists.
func (rc *RunContext) AddPriority(names ...string) {
	for k := range shared.NameSet(names...) {
		if _, banned := rc.banned[k]; !banned {
			rc.priority[k] = struct{}{}
		}
	}
}

// IsPriority reports whether the artist name is a priority artist.
func (rc *RunContext) IsPriority(name string) bool {
	_, ok := rc.priority[shared.NormalizeName(name)]
	return ok
}

// Priority returns the normalized priority names.
func (rc *RunContext) Priority() []string {
	return setKeys(rc.priority)
}

// Accepts reports whether t passes the run's constraints: it has an ID, is not
// already used, and has no banned contributor.
func (rc *RunContext) Accepts(t Track) bool {
	return t.ID != "" && !rc.IsUsed(t.ID) && !rc.HasBannedArtist(t)
}

// Append adds tracks to the list and returns how many were added.
//
// IDs may already be marked used by a tool's post-filter; only tracks already in
// the list, tracks without an ID and tracks with a banned contributor are skipped.
func (rc *RunContext) Append(tracks ...Track) int {
	added := 0
	for _, t := range tracks {
		if t.ID == "" || rc.HasBannedArtist(t) {
			continue
		}
		if _, dup := rc.inList[t.ID]; dup {
			continue
		}
		rc.MarkUsed(t.ID)
		rc.inList[t.ID] = struct{}{}
		rc.tracks = append(rc.tracks, t)
		added++
	}
	return added
}

// Replace swaps the accumulated list for tracks, dropping duplicates and banned artists.
func (rc *RunContext) Replace(tracks []Track) {
	rc.tracks = nil
	rc.inList = make(map[string]struct{}, len(tracks))
	rc.Append(tracks...)
}

// ArtistCounts counts accumulated tracks per normalized primary artist.
func (rc *RunContext) ArtistCounts() map[string]int {
	counts := make(map[string]int)
	for _, t := range rc.tracks {
		counts[t.PrimaryArtistKey()]++
	}
	return counts
}

func setKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
