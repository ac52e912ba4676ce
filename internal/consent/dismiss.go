// Package consent dismisses cookie and age-notice overlays in the browser session.
package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Evaluator runs a script in the current page.
type Evaluator interface {
	Eval(ctx context.Context, js string, args ...any) error
}

// Selectors are the accept buttons of the consent platforms the origin and
// its ad partners are known to use, most specific first.
var Selectors = []string{
	// OneTrust
	`#onetrust-accept-btn-handler`,
	`button[id*="onetrust-accept"]`,

	// Cookiebot
	`#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll`,
	`#CybotCookiebotDialogBodyButtonAccept`,

	// Quantcast / TCF
	`.qc-cmp2-summary-buttons button[mode="primary"]`,

	// Didomi
	`#didomi-notice-agree-button`,

	// Origin age notice and cookie bar
	`.agree-btn`,
	`#adult`,
	`button.cookie-accept`,
	`button#accept-cookies`,
}

// Labels are matched against button text when no selector hits.
var Labels = []string{
	"Accept all",
	"Accept cookies",
	"I agree",
	"我同意",
	"同意",
	"接受",
}

// Script returns the dismissal script. It clicks the first visible match and
// returns nothing; the click itself records consent in the session cookies.
func Script(selectors, labels []string) string {
	sel, _ := json.Marshal(selectors)
	lab, _ := json.Marshal(lowerAll(labels))
	return fmt.Sprintf(`() => {
	const selectors = %s;
	const labels = %s;
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0 && getComputedStyle(el).visibility !== 'hidden';
	};
	for (const s of selectors) {
		let el = null;
		try { el = document.querySelector(s); } catch (e) { continue; }
		if (el && visible(el)) { el.click(); return; }
	}
	for (const el of document.querySelectorAll('button, a[role="button"], [role="button"]')) {
		const text = (el.innerText || '').trim().toLowerCase();
		if (text && text.length < 40 && labels.includes(text) && visible(el)) { el.click(); return; }
	}
}`, sel, lab)
}

// Dismiss runs the default dismissal script against the page. Failures are
// logged and returned so callers can ignore them.
func Dismiss(ctx context.Context, page Evaluator, logger *slog.Logger) error {
	if err := page.Eval(ctx, Script(Selectors, Labels)); err != nil {
		logger.Debug("consent dismissal failed", "error", err)
		return fmt.Errorf("dismissing consent overlay: %w", err)
	}
	return nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
