// Package proxycheck verifies an outbound proxy works before any
// account traffic is routed through it. A dead or misconfigured proxy
// means the account is skipped rather than exposing the real IP.
package proxycheck

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/valeria-popova/guildmgr/internal/aggregate"
	"github.com/valeria-popova/guildmgr/internal/httpx"
)

// Service is one "what is my IP" endpoint. JSONKey selects the field
// holding the IP when the response is JSON; empty means plain text.
type Service struct {
	URL     string
	JSONKey string
}

// DefaultServices is the ordered fallback list; the first one to answer
// 200 wins.
var DefaultServices = []Service{
	{URL: "https://httpbin.org/ip", JSONKey: "origin"},
	{URL: "https://api.ipify.org?format=json", JSONKey: "ip"},
	{URL: "https://ifconfig.me/ip"},
	{URL: "https://icanhazip.com"},
}

// Checker probes proxies against the configured service list. There is
// no retry beyond walking the list once.
type Checker struct {
	Services []Service
	Timeout  time.Duration

	// NewDoer builds the probing HTTP client for a proxy; defaults to
	// httpx.NewClient.
	NewDoer func(p httpx.Proxy, timeout time.Duration) (httpx.Doer, error)

	Stats *aggregate.Stats
	Log   *logrus.Logger
}

func (c *Checker) services() []Service {
	if len(c.Services) == 0 {
		return DefaultServices
	}
	return c.Services
}

func (c *Checker) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func (c *Checker) log() *logrus.Logger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// Check reports whether the raw proxy descriptor is usable for the
// given account. An empty descriptor is usable but logged loudly: the
// request traffic will expose the real IP. A descriptor that does not
// parse is unusable without any network call.
func (c *Checker) Check(ctx context.Context, raw, identifier string) bool {
	entry := c.log().WithField("profile", identifier)
	if c.Stats != nil {
		c.Stats.ProxyChecked.Add(1)
	}

	if strings.TrimSpace(raw) == "" {
		if c.Stats != nil {
			c.Stats.ProxyEmpty.Add(1)
		}
		entry.Warn("NO PROXY configured - using DIRECT connection (IP EXPOSED!)")
		entry.Warn("SECURITY RISK: Your real IP will be visible to Discord!")
		return true
	}

	p, err := httpx.ParseProxy(raw)
	if err != nil {
		if c.Stats != nil {
			c.Stats.ProxyFailed.Add(1)
		}
		entry.Errorf("Invalid proxy format: %s", raw)
		return false
	}

	entry.Infof("Testing proxy: %s", p.Redacted())

	build := c.NewDoer
	if build == nil {
		build = func(p httpx.Proxy, timeout time.Duration) (httpx.Doer, error) {
			return httpx.NewClient(httpx.ClientConfig{Proxy: p, Timeout: timeout})
		}
	}
	doer, err := build(p, c.timeout())
	if err != nil {
		if c.Stats != nil {
			c.Stats.ProxyFailed.Add(1)
		}
		entry.Errorf("Failed to build proxy client: %v", err)
		return false
	}

	for _, svc := range c.services() {
		ip, ok := c.probe(ctx, doer, svc)
		if !ok {
			entry.Warnf("Service %s failed, trying next...", svc.URL)
			continue
		}
		if c.Stats != nil {
			c.Stats.ProxyWorking.Add(1)
		}
		entry.Infof("Proxy working! IP: %s (via %s)", ip, svc.URL)
		return true
	}

	if c.Stats != nil {
		c.Stats.ProxyFailed.Add(1)
	}
	entry.Errorf("Proxy failed on ALL test services: %s", p.Redacted())
	entry.Error("Possible causes: Wrong credentials, proxy offline, or network issues")
	entry.Error("Account will be SKIPPED (security measure)")
	return false
}

// probe hits one service and extracts the reported IP. Any non-200
// status, timeout or connection error means "try the next service".
func (c *Checker) probe(ctx context.Context, doer httpx.Doer, svc Service) (string, bool) {
	req, err := httpx.NewRequest(ctx, http.MethodGet, svc.URL, nil, "")
	if err != nil {
		return "", false
	}
	resp, err := doer.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", false
	}

	if svc.JSONKey == "" {
		return strings.TrimSpace(string(body)), true
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "Unknown", true
	}
	ip, _ := payload[svc.JSONKey].(string)
	if ip == "" {
		ip = "Unknown"
	}
	return ip, true
}
