// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks one prompt at a time through these views:
//  1. [PromptView] : Type a request for the playlist
//  2. [GenerateView] : Watch the run move through its phases with a spinner
//  3. [ResultView] : Browse the generated tracks, or the partial list of a failed run
//  4. [ConfirmView] : Confirm publishing the playlist to Spotify
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the engine; the final result arrives on its own channel so no update is
// mistaken for completion.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, p, y/n, r, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
