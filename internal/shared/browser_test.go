package shared

import (
	"errors"
	"slices"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	const url = "https://accounts.spotify.com/authorize?state=abc"
	tests := []struct {
		name    string
		goos    string
		browser string
		want    []string
		err     error
	}{
		{"macOS", "darwin", "", []string{"open", url}, nil},
		{"linux", "linux", "", []string{"xdg-open", url}, nil},
		{"windows", "windows", "", []string{"rundll32", "url.dll,FileProtocolHandler", url}, nil},
		{"BROWSER overrides", "linux", "firefox --new-tab", []string{"firefox", "--new-tab", url}, nil},
		{"unsupported", "plan9", "", nil, ErrNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := browserCommand(tt.goos, tt.browser, url)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("browserCommand() = %v, want %v", got, tt.want)
			}
		})
	}
}
