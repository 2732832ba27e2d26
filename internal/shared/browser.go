package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

var launchers = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

// browserCommand returns the argv that opens url on goos. A non-empty $BROWSER wins.
func browserCommand(goos, browser, url string) ([]string, error) {
	if fields := strings.Fields(browser); len(fields) > 0 {
		return append(fields, url), nil
	}
	launcher, ok := launchers[goos]
	if !ok {
		return nil, fmt.Errorf("%w: no browser launcher for %s", ErrNotImplemented, goos)
	}
	return append(append([]string(nil), launcher...), url), nil
}

// OpenBrowser starts the user's browser on url without waiting for it to exit.
func OpenBrowser(url string) error {
	argv, err := browserCommand(runtime.GOOS, os.Getenv("BROWSER"), url)
	if err != nil {
		return err
	}
	if err := exec.Command(argv[0], argv[1:]...).Start(); err != nil {
		return fmt.Errorf("failed to launch %s: %w", argv[0], err)
	}
	return nil
}
