package shared

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

var (
	getRuntime = func() string { return runtime.GOOS }
	lookPath   = exec.LookPath
	startCmd   = func(cmd *exec.Cmd) error { return cmd.Start() }
)

// browserCommands lists launchers per platform, tried in order.
var browserCommands = map[string][][]string{
	"darwin":  {{"open"}},
	"linux":   {{"xdg-open"}, {"sensible-browser"}, {"wslview"}},
	"freebsd": {{"xdg-open"}},
	"windows": {{"rundll32", "url.dll,FileProtocolHandler"}},
}

// OpenBrowser opens the default system browser to the specified URL without waiting for it to exit.
//
// Only absolute http(s) URLs are accepted.
func OpenBrowser(target string) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: refusing to open %q", ErrInvalidInput, target)
	}

	rt := getRuntime()
	candidates, ok := browserCommands[rt]
	if !ok {
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	var lastErr error
	for _, argv := range candidates {
		bin, err := lookPath(argv[0])
		if err != nil {
			lastErr = err
			continue
		}
		args := append(append([]string{}, argv[1:]...), target)
		if err := startCmd(exec.Command(bin, args...)); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("failed to open browser: %w", lastErr)
}
