package browser

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/FairVenturesLab/implicit-auth/implicit"
)

// OpenURL opens u in the operating system's default browser.
func OpenURL(u string) error {
	const op = "browser.OpenURL"
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", u)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: unable to launch browser: %w", op, err)
	}
	// the browser outlives us; reap the launcher only
	go func() { _ = cmd.Wait() }()
	return nil
}

// SystemNavigator is an implicit.Navigator for programs without a redirect
// listener: Replace opens the system browser and Location always reports
// Home, which carries no fragment.  It suits Logout and restoring a stored
// session.
type SystemNavigator struct {
	Home string
}

// ensure that SystemNavigator implements the implicit.Navigator interface
var _ implicit.Navigator = SystemNavigator{}

// Location implements implicit.Navigator
func (n SystemNavigator) Location(context.Context) (string, error) { return n.Home, nil }

// Replace implements implicit.Navigator
func (n SystemNavigator) Replace(_ context.Context, u string) error { return OpenURL(u) }
