package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// StealthScript patches the fingerprint surfaces go-rod/stealth leaves alone.
const StealthScript = `
(function() {
    'use strict';

    try {
        delete Object.getPrototypeOf(navigator).webdriver;
    } catch (e) {}

    Object.defineProperty(navigator, 'languages', {
        get: () => Object.freeze(['zh-TW', 'zh', 'en-US', 'en']),
        configurable: true
    });

    if (!navigator.hardwareConcurrency) {
        Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8, configurable: true });
    }
    if (!navigator.deviceMemory) {
        Object.defineProperty(navigator, 'deviceMemory', { get: () => 8, configurable: true });
    }

    try {
        const originalQuery = Permissions.prototype.query;
        Permissions.prototype.query = function(parameters) {
            if (parameters.name === 'notifications') {
                return Promise.resolve({ state: Notification.permission });
            }
            return originalQuery.call(this, parameters);
        };
    } catch (e) {}

    const webglHandler = {
        apply: function(target, ctx, args) {
            if (args[0] === 37445) return 'Google Inc. (Intel)';
            if (args[0] === 37446) return 'ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)';
            return Reflect.apply(target, ctx, args);
        }
    };
    for (const ctor of [window.WebGLRenderingContext, window.WebGL2RenderingContext]) {
        try {
            ctor.prototype.getParameter = new Proxy(ctor.prototype.getParameter, webglHandler);
        } catch (e) {}
    }
})();
`

// CreatePage opens a page on b. Unless disableStealth is set the page is a
// go-rod/stealth page with StealthScript installed for every new document.
func CreatePage(b *rod.Browser, disableStealth bool) (*rod.Page, error) {
	if disableStealth {
		return b.Page(proto.TargetCreateTarget{})
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, err
	}

	if _, err := page.EvalOnNewDocument(StealthScript); err != nil {
		_ = page.Close()
		return nil, err
	}

	return page, nil
}
