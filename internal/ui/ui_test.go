package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
)

type fakeGenerator struct {
	updates []tasks.ProgressUpdate
	result  *tasks.Result
	err     error
	got     chan tasks.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req tasks.Request, progress chan<- tasks.ProgressUpdate) (*tasks.Result, error) {
	if f.got != nil {
		f.got <- req
	}
	for _, u := range f.updates {
		progress <- u
	}
	return f.result, f.err
}

type fakePublisher struct {
	name string
	uris []string
}

func (f *fakePublisher) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	f.name = name
	return "pl1", nil
}

func (f *fakePublisher) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	f.uris = append(f.uris, uris...)
	return nil
}

func sampleResult() *tasks.Result {
	return &tasks.Result{RunID: "run1", Tracks: []models.Track{
		{ID: "t1", Name: "Nightcall", URI: "spotify:track:t1", Artists: []models.ArtistRef{{Name: "Kavinsky"}}},
		{ID: "t2", Name: "Turbo Killer", URI: "spotify:track:t2", Artists: []models.ArtistRef{{Name: "Carpenter Brut"}}},
	}}
}

func typeText(m *Model, s string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func press(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drain runs cmd until it yields a message of kind, feeding every [Msg] back into the model.
func drain(t *testing.T, m *Model, kind MsgKind) {
	t.Helper()
	cmd := m.waitForProgress()
	for i := 0; i < 20 && cmd != nil; i++ {
		msg, ok := cmd().(Msg)
		if !ok {
			t.Fatal("expected a Msg")
		}
		_, cmd = m.Update(msg)
		if msg.kind == kind {
			return
		}
	}
	t.Fatalf("never received message kind %d", kind)
}

func TestModelGenerate(t *testing.T) {
	t.Run("empty prompt is ignored", func(t *testing.T) {
		m := NewModel(context.Background(), &fakeGenerator{}, nil, tasks.Request{})
		m.Update(press("enter"))
		if m.view != PromptView {
			t.Errorf("expected to stay on the prompt, got view %d", m.view)
		}
	})

	t.Run("runs the prompt with the template options", func(t *testing.T) {
		gen := &fakeGenerator{
			updates: []tasks.ProgressUpdate{
				{Phase: tasks.Planning, Message: "Planning"},
				{Phase: tasks.Executing, Step: 1, Total: 2, Message: "search_genre"},
			},
			result: sampleResult(),
			got:    make(chan tasks.Request, 1),
		}
		m := NewModel(context.Background(), gen, nil, tasks.Request{TargetTracks: 12})
		typeText(m, "synthwave")
		m.Update(press("enter"))

		if m.view != GenerateView {
			t.Fatalf("expected generate view, got %d", m.view)
		}
		req := <-gen.got
		if req.Prompt != "synthwave" || req.TargetTracks != 12 {
			t.Errorf("unexpected request %+v", req)
		}

		drain(t, m, MsgGenerateComplete)
		if m.view != ResultView || m.result == nil {
			t.Fatalf("expected result view with a result, got view %d", m.view)
		}
		if len(m.trackList.Items()) != 2 {
			t.Errorf("expected 2 list items, got %d", len(m.trackList.Items()))
		}
		if !strings.Contains(m.View(), "✓ 2 tracks") {
			t.Errorf("result view missing count:\n%s", m.View())
		}
	})

	t.Run("failure shows partial tracks", func(t *testing.T) {
		partial := sampleResult().Tracks[:1]
		gen := &fakeGenerator{err: &tasks.GenerateError{RunID: "run2", Err: shared.ErrNoTracks, Partial: partial}}
		m := NewModel(context.Background(), gen, nil, tasks.Request{})
		typeText(m, "anything")
		m.Update(press("enter"))
		drain(t, m, MsgGenerateComplete)

		if !errors.Is(m.err, shared.ErrNoTracks) {
			t.Fatalf("expected no tracks error, got %v", m.err)
		}
		view := m.View()
		if !strings.Contains(view, "Generation failed") || !strings.Contains(view, "1 partial tracks") {
			t.Errorf("unexpected failure view:\n%s", view)
		}
	})

	t.Run("restart returns to an empty prompt", func(t *testing.T) {
		m := NewModel(context.Background(), &fakeGenerator{result: sampleResult()}, nil, tasks.Request{})
		typeText(m, "x")
		m.Update(press("enter"))
		drain(t, m, MsgGenerateComplete)

		m.Update(press("r"))
		if m.view != PromptView || m.input.Value() != "" || m.result != nil {
			t.Errorf("expected a clean prompt, got view %d value %q", m.view, m.input.Value())
		}
	})
}

func TestModelPublish(t *testing.T) {
	newResultModel := func(pub *fakePublisher) *Model {
		var m *Model
		if pub == nil {
			m = NewModel(context.Background(), &fakeGenerator{result: sampleResult()}, nil, tasks.Request{})
		} else {
			m = NewModel(context.Background(), &fakeGenerator{result: sampleResult()}, pub, tasks.Request{})
		}
		typeText(m, "night drive")
		m.Update(press("enter"))
		drain(t, m, MsgGenerateComplete)
		return m
	}

	t.Run("hidden without a publisher", func(t *testing.T) {
		m := newResultModel(nil)
		m.Update(press("p"))
		if m.view != ResultView {
			t.Errorf("expected to stay on results, got %d", m.view)
		}
	})

	t.Run("declined", func(t *testing.T) {
		m := newResultModel(&fakePublisher{})
		m.Update(press("p"))
		if m.view != ConfirmView {
			t.Fatalf("expected confirm view, got %d", m.view)
		}
		m.Update(press("n"))
		if m.view != ResultView || m.publishing {
			t.Errorf("expected results without publishing, got view %d", m.view)
		}
	})

	t.Run("confirmed", func(t *testing.T) {
		pub := &fakePublisher{}
		m := newResultModel(pub)
		m.Update(press("p"))
		_, cmd := m.Update(press("y"))
		if !m.publishing || cmd == nil {
			t.Fatal("expected publishing to start")
		}

		msg := m.startPublish()()
		m.Update(msg)
		if m.publishing || m.published == nil {
			t.Fatalf("expected published result, err %v", m.err)
		}
		if pub.name != "night drive" || len(pub.uris) != 2 {
			t.Errorf("unexpected publish %q %v", pub.name, pub.uris)
		}
		if !strings.Contains(m.View(), "Published") {
			t.Errorf("view missing publish status:\n%s", m.View())
		}
		if m.canPublish() {
			t.Error("a published result should not be publishable again")
		}
	})
}
