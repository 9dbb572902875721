package httpx

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
)

const DefaultUserAgent = "Mozilla/5.0"

// Doer lets us accept *http.Client or a test double.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Proxy is a parsed outbound proxy descriptor. The zero value means a
// direct connection.
type Proxy struct {
	url *url.URL
}

// ParseProxy parses a proxy line from proxies.txt. Accepted forms:
//
//	host:port
//	host:port:user:pass
//	socks5://host:port (and other URL forms with an explicit scheme)
//
// An empty string parses to the direct-connection descriptor. Any other
// token count is an error.
func ParseProxy(raw string) (Proxy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Proxy{}, nil
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Proxy{}, errors.Wrapf(err, "parse proxy url %q", raw)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return Proxy{}, errors.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		return Proxy{url: u}, nil
	}

	parts := strings.Split(raw, ":")
	switch len(parts) {
	case 2:
		return Proxy{url: &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(parts[0], parts[1]),
		}}, nil
	case 4:
		return Proxy{url: &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(parts[0], parts[1]),
			User:   url.UserPassword(parts[2], parts[3]),
		}}, nil
	}
	return Proxy{}, errors.Errorf("invalid proxy format %q: want host:port or host:port:user:pass", raw)
}

// Empty reports whether the descriptor means a direct connection.
func (p Proxy) Empty() bool {
	return p.url == nil
}

// Redacted renders the proxy for logging with the password masked.
func (p Proxy) Redacted() string {
	if p.url == nil {
		return ""
	}
	u := *p.url
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "****")
		}
	}
	return u.String()
}

type ClientConfig struct {
	Proxy   Proxy
	Timeout time.Duration
}

// NewClient builds an HTTP client routed through the given proxy
// descriptor. SOCKS5 descriptors dial through x/net/proxy; HTTP(S)
// descriptors go through the transport proxy setting.
func NewClient(cfg ClientConfig) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if !cfg.Proxy.Empty() {
		u := cfg.Proxy.url
		if u.Scheme == "socks5" {
			dialer, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, errors.Wrap(err, "create socks5 dialer")
			}
			transport.Proxy = nil
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				// x/net/proxy Dialer doesn't support ctx; best effort.
				return dialer.Dial(network, addr)
			}
		} else {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}, nil
}

func NewRequest(ctx context.Context, method, rawURL string, body io.Reader, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}
