package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

var (
	_ list.Item = trackItem{}
)

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	pos   int
	track models.Track
}

func (i trackItem) FilterValue() string { return i.track.Name + " " + i.track.ArtistLine() }
func (i trackItem) Title() string       { return fmt.Sprintf("%d. %s", i.pos, i.track.Name) }
func (i trackItem) Description() string {
	desc := i.track.ArtistLine()
	if i.track.Album != nil && i.track.Album.Name != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album.Name)
	}
	if i.track.DurationMS > 0 {
		desc = fmt.Sprintf("%s • %s", desc, shared.FormatDuration(i.track.DurationMS))
	}
	return desc
}

func trackItems(tracks []models.Track) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{pos: i + 1, track: t}
	}
	return items
}
