// Package browser configures Chromium launches and stealth pages for go-rod.
package browser

import (
	"fmt"

	"github.com/go-rod/rod/lib/launcher"
)

// LaunchOptions configures a Chromium process.
type LaunchOptions struct {
	ChromePath   string
	Headless     bool
	ProxyServer  string // scheme://host:port, credentials are handled per page
	WindowWidth  int
	WindowHeight int
	Lang         string
}

// NewLauncher returns a launcher with flags that hide the usual automation
// markers and keep the process stable inside containers.
func NewLauncher(opts LaunchOptions) *launcher.Launcher {
	width, height := opts.WindowWidth, opts.WindowHeight
	if width <= 0 {
		width = 1920
	}
	if height <= 0 {
		height = 1080
	}
	lang := opts.Lang
	if lang == "" {
		lang = "zh-TW,zh,en-US,en"
	}

	l := launcher.New()
	if opts.ChromePath != "" {
		l = l.Bin(opts.ChromePath)
	}

	l = l.
		Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("no-zygote").
		Set("disable-setuid-sandbox").
		Set("disable-infobars").
		Set("ignore-certificate-errors").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Set("window-size", fmt.Sprintf("%d,%d", width, height)).
		Set("lang", lang)

	if opts.ProxyServer != "" {
		l = l.Proxy(opts.ProxyServer)
	}

	return l
}
