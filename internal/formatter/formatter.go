// package formatter exports generated playlists to various formats (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

// Format names an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// ParseFormat accepts a format name or common alias (md, text).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (want json, csv, markdown or txt)", shared.ErrInvalidArgument, s)
}

// Playlist is a generated playlist ready for export.
type Playlist struct {
	RunID       string         `json:"run_id"`
	Name        string         `json:"name"`
	Prompt      string         `json:"prompt"`
	Target      int            `json:"target_tracks"`
	Fallback    bool           `json:"fallback"`
	GeneratedAt time.Time      `json:"generated_at"`
	Tracks      []models.Track `json:"tracks"`
}

// Metadata is a playlist without its tracks.
type Metadata struct {
	RunID       string    `json:"run_id"`
	Name        string    `json:"name"`
	Prompt      string    `json:"prompt"`
	Target      int       `json:"target_tracks"`
	TrackCount  int       `json:"track_count"`
	DurationMS  int       `json:"duration_ms"`
	Fallback    bool      `json:"fallback"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Metadata summarises p.
func (p *Playlist) Metadata() Metadata {
	total := 0
	for _, t := range p.Tracks {
		total += t.DurationMS
	}
	return Metadata{
		RunID:       p.RunID,
		Name:        p.Name,
		Prompt:      p.Prompt,
		Target:      p.Target,
		TrackCount:  len(p.Tracks),
		DurationMS:  total,
		Fallback:    p.Fallback,
		GeneratedAt: p.GeneratedAt,
	}
}

// baseName is the default file stem: the run ID, or "playlist".
func (p *Playlist) baseName() string {
	if p.RunID != "" {
		return p.RunID
	}
	return "playlist"
}

// Export renders p in format.
func Export(p *Playlist, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return ExportToJSON(p)
	case FormatCSV:
		return ExportToCSV(p)
	case FormatMarkdown:
		return ExportToMarkdown(p)
	case FormatText:
		return ExportToText(p)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
}

// Write renders p in format to w.
func Write(w io.Writer, p *Playlist, format Format) error {
	data, err := Export(p, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s export: %w", format, err)
	}
	return nil
}

// ExportToJSON renders the playlist with its tracks as indented JSON.
func ExportToJSON(p *Playlist) ([]byte, error) {
	data, err := shared.MarshalJSON(p, true)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal playlist: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToCSV converts a playlist to CSV format with columns: ID, Title, Artists, Album, Duration, Popularity, URI
func ExportToCSV(p *Playlist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artists", "Album", "Duration", "Popularity", "URI"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range p.Tracks {
		record := []string{
			track.ID,
			track.Name,
			track.ArtistLine(),
			albumName(track),
			shared.FormatDuration(track.DurationMS),
			strconv.Itoa(track.Popularity),
			track.URI,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a playlist to Markdown with the prompt and a numbered track list.
func ExportToMarkdown(p *Playlist) ([]byte, error) {
	var buf bytes.Buffer
	meta := p.Metadata()

	buf.WriteString(fmt.Sprintf("# %s\n\n", displayName(p)))
	if p.Prompt != "" {
		buf.WriteString(fmt.Sprintf("> %s\n\n", p.Prompt))
	}

	buf.WriteString(fmt.Sprintf("**Tracks**: %d of %d\n", meta.TrackCount, p.Target))
	buf.WriteString(fmt.Sprintf("**Length**: %s\n", shared.FormatDuration(meta.DurationMS)))
	if p.Fallback {
		buf.WriteString("**Mode**: direct suggestions (planner unavailable)\n")
	}
	if p.RunID != "" {
		buf.WriteString(fmt.Sprintf("**Run**: `%s`\n", p.RunID))
	}

	buf.WriteString("\n## Tracks\n\n")
	for i, track := range p.Tracks {
		albumPart := ""
		if name := albumName(track); name != "" {
			albumPart = fmt.Sprintf(" (%s)", name)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]\n", i+1, track.ArtistLine(), track.Name, albumPart, shared.FormatDuration(track.DurationMS)))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a playlist to plain text format
func ExportToText(p *Playlist) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Playlist: %s\n", displayName(p)))
	if p.Prompt != "" {
		buf.WriteString(fmt.Sprintf("Prompt: %s\n", p.Prompt))
	}
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(p.Tracks)))

	for i, track := range p.Tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, track.ArtistLine(), track.Name))
	}

	return buf.Bytes(), nil
}

// ToMetadataJSON generates a JSON representation of playlist metadata (without tracks)
func ToMetadataJSON(p *Playlist) ([]byte, error) {
	return shared.MarshalJSON(p.Metadata(), true)
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport exports a playlist to CSV format with accompanying metadata JSON file.
//
// Defaults to the run ID as the base filename & creates {base}_tracks.csv and {base}_metadata.json
func WriteCSVExport(p *Playlist, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = p.baseName()
	}

	csvData, err := ExportToCSV(p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := baseFilepath + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		TracksFile:   tracksFile,
		MetadataFile: metadataFile,
	}, nil
}

// WriteMarkdownExport exports a playlist to {dir}/README.md.
//
// Directory name defaults to the run ID.
func WriteMarkdownExport(p *Playlist, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = p.baseName()
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	mdData, err := ExportToMarkdown(p)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return mdFile, nil
}

// WriteFile writes p to path in format, choosing a default name from the run ID when path is empty.
func WriteFile(p *Playlist, format Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_tracks.%s", p.baseName(), extension(format))
	}

	data, err := Export(p, format)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}

	return path, nil
}

func extension(f Format) string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

func displayName(p *Playlist) string {
	if p.Name != "" {
		return p.Name
	}
	if p.Prompt != "" {
		return p.Prompt
	}
	return "Untitled playlist"
}

func albumName(t models.Track) string {
	if t.Album == nil {
		return ""
	}
	return t.Album.Name
}
