package browser

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
)

// Opener presents a URL to the user.
type Opener interface {
	Open(ctx context.Context, target string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, target string) error

func (f OpenerFunc) Open(ctx context.Context, target string) error { return f(ctx, target) }

// SystemOpener launches the platform's default browser.
type SystemOpener struct{}

// Open starts the browser and returns without waiting for it to exit.
func (SystemOpener) Open(ctx context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("empty url")
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return startDetached(cmd)
}

// startDetached starts cmd and reaps it in the background so the launcher
// does not linger as a zombie.
func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
