package session

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Proxy describes the upstream proxy used for browser and origin egress.
type Proxy struct {
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
}

// ParseProxy parses scheme://[user:pass@]host:port. A missing scheme means http.
func ParseProxy(raw string) (*Proxy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty proxy url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}

	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return nil, fmt.Errorf("proxy url needs host:port: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid proxy port %q", portStr)
	}

	p := &Proxy{Scheme: u.Scheme, Host: host, Port: port}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	return p, nil
}

// Server returns scheme://host:port without credentials, as Chromium expects.
func (p *Proxy) Server() string {
	return fmt.Sprintf("%s://%s", p.Scheme, net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
}

// HasAuth reports whether the proxy needs credentials.
func (p *Proxy) HasAuth() bool {
	return p.Username != ""
}

// URL returns the proxy URL including credentials, for net/http transports.
func (p *Proxy) URL() *url.URL {
	u := &url.URL{Scheme: p.Scheme, Host: net.JoinHostPort(p.Host, strconv.Itoa(p.Port))}
	if p.HasAuth() {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// String returns the proxy URL with credentials masked.
func (p *Proxy) String() string {
	return maskProxyCredentials(p.URL().String())
}

// LogValue keeps credentials out of structured logs.
func (p *Proxy) LogValue() slog.Value {
	return slog.StringValue(p.String())
}

// maskProxyCredentials masks the username/password in a proxy URL.
func maskProxyCredentials(proxyURL string) string {
	atIdx := strings.LastIndex(proxyURL, "@")
	if atIdx > 0 {
		schemeIdx := strings.Index(proxyURL, "://")
		if schemeIdx > 0 && schemeIdx < atIdx {
			return proxyURL[:schemeIdx+3] + "****:****" + proxyURL[atIdx:]
		}
	}
	return proxyURL
}
