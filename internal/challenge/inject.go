package challenge

// Token injection scripts take the solved token as their single argument.
const (
	turnstileScript = `(token) => {
	const input = document.querySelector('[name="cf-turnstile-response"]');
	if (input) input.value = token;
	if (window.turnstileCallback) window.turnstileCallback(token);
}`

	hcaptchaScript = `(token) => {
	for (const name of ['h-captcha-response', 'g-recaptcha-response']) {
		const el = document.querySelector('[name="' + name + '"]');
		if (el) el.value = token;
	}
	if (window.hcaptchaCallback) window.hcaptchaCallback(token);
}`

	recaptchaScript = `(token) => {
	const el = document.querySelector('[name="g-recaptcha-response"]');
	if (el) el.value = token;
	if (window.grecaptchaCallback) window.grecaptchaCallback(token);
}`
)

// InjectionScript returns the script that writes a solved token into the
// page for the given challenge type. Auto-resolving challenges have none.
func InjectionScript(t Type) (string, bool) {
	switch t {
	case TypeCloudflareTurnstile:
		return turnstileScript, true
	case TypeHCaptcha:
		return hcaptchaScript, true
	case TypeReCaptchaV2, TypeReCaptchaV3:
		return recaptchaScript, true
	default:
		return "", false
	}
}
