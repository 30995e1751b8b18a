package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/pkg/browser"

	"github.com/fastertools/drivelink/internal/auth"
)

// ConsoleDisplay prints the device authorization instructions and keeps a
// spinner running until the provider hides it.
type ConsoleDisplay struct {
	out         io.Writer
	noBrowser   bool
	openBrowser func(url string) error

	mu      sync.Mutex
	spinner *spinner.Spinner
}

// NewConsoleDisplay creates a display writing to out
func NewConsoleDisplay(out io.Writer, noBrowser bool) *ConsoleDisplay {
	return &ConsoleDisplay{
		out:         out,
		noBrowser:   noBrowser,
		openBrowser: browser.OpenURL,
	}
}

// Show implements auth.Display
func (d *ConsoleDisplay) Show(session *auth.DeviceAuthorizationSession) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fmt.Fprintln(d.out, "🌐 To authorize drivelink, visit:")
	fmt.Fprintln(d.out, color.CyanString("   %s", session.VerificationURL))
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, "📋 And enter the code:")
	fmt.Fprintln(d.out, color.YellowString("   %s", session.UserCode))
	fmt.Fprintln(d.out)

	if !d.noBrowser {
		fmt.Fprintln(d.out, "🚀 Opening browser...")
		if err := d.openBrowser(session.VerificationURL); err != nil {
			fmt.Fprintln(d.out, warnColor.Sprintf("⚠ Could not open a browser: %v", err))
		}
	}

	d.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(d.out))
	d.spinner.Suffix = " Waiting for authorization..."
	d.spinner.Start()
}

// Hide implements auth.Display
func (d *ConsoleDisplay) Hide() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.spinner != nil {
		d.spinner.Stop()
		d.spinner = nil
	}
}
