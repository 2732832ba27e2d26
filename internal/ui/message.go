package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mixtape/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgGenerateComplete
	MsgPublishComplete
)

type generateOutcome struct {
	result *tasks.Result
	err    error
}

type publishOutcome struct {
	published *tasks.Published
	err       error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// generateCompleteMsg is the constructor for [MsgGenerateComplete]
func generateCompleteMsg(result *tasks.Result, err error) Msg {
	return Msg{kind: MsgGenerateComplete, data: generateOutcome{result, err}}
}

// publishCompleteMsg is the constructor for [MsgPublishComplete]
func publishCompleteMsg(published *tasks.Published, err error) Msg {
	return Msg{kind: MsgPublishComplete, data: publishOutcome{published, err}}
}
