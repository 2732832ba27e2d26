// Package balancer caps and spreads tracks across artists.
package balancer

import (
	"math/rand/v2"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

const (
	DefaultPriorityCap = 4
	DefaultOthersCap   = 2
)

// Options controls a [Balance] pass.
//
// MaxPerArtist, when set and positive, replaces both per-artist caps.
// A TotalTarget of zero keeps every admitted track.
type Options struct {
	MaxPerArtist     *int
	PriorityArtists  []string
	PriorityCap      int
	OthersCap        int
	Shuffle          bool
	AvoidConsecutive bool
	TotalTarget      int
}

// DefaultOptions returns the caps used when a plan does not override them.
func DefaultOptions() Options {
	return Options{
		PriorityCap:      DefaultPriorityCap,
		OthersCap:        DefaultOthersCap,
		AvoidConsecutive: true,
	}
}

// Balance returns a capped, reordered subset of tracks.
//
// Input is shuffled first so no artist is favoured by arrival order, then walked
// once: a track is admitted while its primary artist is under its cap, until the
// target is reached. Duplicate IDs are dropped. The admitted set is optionally
// reshuffled and then reordered so the same primary artist is not played twice
// in a row whenever another artist is left to place.
func Balance(tracks []models.Track, opts Options, rng *rand.Rand) []models.Track {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.PriorityCap <= 0 {
		opts.PriorityCap = DefaultPriorityCap
	}
	if opts.OthersCap <= 0 {
		opts.OthersCap = DefaultOthersCap
	}

	pool := append([]models.Track(nil), tracks...)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	priority := shared.NameSet(opts.PriorityArtists...)
	counts := make(map[string]int)
	seen := make(map[string]struct{})
	admitted := make([]models.Track, 0, len(pool))

	for _, t := range pool {
		if opts.TotalTarget > 0 && len(admitted) >= opts.TotalTarget {
			break
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		artist := t.PrimaryArtistKey()
		if counts[artist] >= capFor(artist, priority, opts) {
			continue
		}
		seen[t.ID] = struct{}{}
		counts[artist]++
		admitted = append(admitted, t)
	}

	if opts.Shuffle {
		rng.Shuffle(len(admitted), func(i, j int) { admitted[i], admitted[j] = admitted[j], admitted[i] })
	}
	if opts.AvoidConsecutive {
		admitted = spread(admitted)
	}
	return admitted
}

func capFor(artist string, priority map[string]struct{}, opts Options) int {
	if opts.MaxPerArtist != nil && *opts.MaxPerArtist > 0 {
		return *opts.MaxPerArtist
	}
	if _, ok := priority[artist]; ok {
		return opts.PriorityCap
	}
	return opts.OthersCap
}

// spread greedily places, at each step, a track from the artist with the most
// tracks left among those different from the last placed artist. When only the
// last artist remains its tracks are placed back to back.
func spread(tracks []models.Track) []models.Track {
	remaining := append([]models.Track(nil), tracks...)
	left := make(map[string]int)
	for _, t := range remaining {
		left[t.PrimaryArtistKey()]++
	}

	out := make([]models.Track, 0, len(tracks))
	last := ""
	for len(remaining) > 0 {
		pick := -1
		for i, t := range remaining {
			artist := t.PrimaryArtistKey()
			if len(out) > 0 && artist == last {
				continue
			}
			if pick < 0 || left[artist] > left[remaining[pick].PrimaryArtistKey()] {
				pick = i
			}
		}
		if pick < 0 {
			pick = 0
		}

		t := remaining[pick]
		remaining = append(remaining[:pick], remaining[pick+1:]...)
		last = t.PrimaryArtistKey()
		left[last]--
		out = append(out, t)
	}
	return out
}

// AdjacentRepeats counts positions whose primary artist matches the previous track's.
func AdjacentRepeats(tracks []models.Track) int {
	n := 0
	for i := 1; i < len(tracks); i++ {
		if tracks[i].PrimaryArtistKey() == tracks[i-1].PrimaryArtistKey() {
			n++
		}
	}
	return n
}

// ArtistCounts tallies tracks per normalized primary artist.
func ArtistCounts(tracks []models.Track) map[string]int {
	counts := make(map[string]int)
	for _, t := range tracks {
		counts[t.PrimaryArtistKey()]++
	}
	return counts
}
