// Package discord implements the per-account Discord API operations:
// token validation, guild enumeration and guild leave, the latter two
// under a shared bounded retry policy.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/valeria-popova/guildmgr/internal/aggregate"
	"github.com/valeria-popova/guildmgr/internal/httpx"
	"github.com/valeria-popova/guildmgr/internal/profile"
)

const DefaultBaseURL = "https://discord.com/api/v9"

// Guild is one API-side guild membership.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TokenRecorder receives the outcome of every token check. Flushing the
// collected records to disk is the caller's business.
type TokenRecorder interface {
	Valid(acct profile.Account)
	Invalid(acct profile.Account)
}

// tokenShape is an offline sanity screen for the usual three-part token
// format. A mismatch is only warned about; the API stays the authority.
var tokenShape = regexp2.MustCompile(`^[\w-]{20,}\.[\w-]{5,8}\.[\w-]{20,}$`, 0)

// Client performs Discord API calls for one run. Per-account transport
// (proxy, user-agent) comes from the Account passed to each call.
type Client struct {
	BaseURL string
	Timeout time.Duration

	// Retries caps attempts per operation, default 3.
	Retries int

	// PaceMin/PaceMax bound the pre-attempt pacing delay for leave
	// operations, in units.
	PaceMin float64
	PaceMax float64

	// Unit scales every delay in the retry contract; production leaves
	// it at one second, tests shrink it.
	Unit time.Duration

	// NewDoer builds the HTTP client for an account's proxy. Defaults
	// to httpx.NewClient.
	NewDoer func(p httpx.Proxy, timeout time.Duration) (httpx.Doer, error)

	Tokens TokenRecorder
	Stats  *aggregate.Stats
	Log    *logrus.Logger
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return c.BaseURL
}

func (c *Client) retries() int {
	if c.Retries <= 0 {
		return 3
	}
	return c.Retries
}

func (c *Client) unit() time.Duration {
	if c.Unit <= 0 {
		return time.Second
	}
	return c.Unit
}

func (c *Client) log() *logrus.Logger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// doer builds the per-account HTTP client. A proxy that fails to parse
// here falls back to a direct connection; the pipeline has already
// verified the proxy before any API traffic.
func (c *Client) doer(acct profile.Account) (httpx.Doer, error) {
	p, err := httpx.ParseProxy(acct.Proxy)
	if err != nil {
		p = httpx.Proxy{}
	}
	build := c.NewDoer
	if build == nil {
		build = func(p httpx.Proxy, timeout time.Duration) (httpx.Doer, error) {
			return httpx.NewClient(httpx.ClientConfig{Proxy: p, Timeout: timeout})
		}
	}
	return build(p, c.Timeout)
}

func (c *Client) logConnection(entry *logrus.Entry, acct profile.Account) {
	p, err := httpx.ParseProxy(acct.Proxy)
	if err != nil || p.Empty() {
		entry.Info("Direct connection (no proxy)")
		return
	}
	entry.Infof("Using proxy: %s", p.Redacted())
}

// jitter returns a uniformly random delay in [lo, hi] units.
func (c *Client) jitter(lo, hi float64) time.Duration {
	return time.Duration((lo + rand.Float64()*(hi-lo)) * float64(c.unit()))
}

// retryAfter reads the server-supplied 429 delay, defaulting to 5 units.
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	seconds := 5.0
	if v := resp.Header.Get("Retry-After"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			seconds = f
		}
	}
	return time.Duration(seconds * float64(c.unit()))
}

// attemptDelay is the per-attempt backoff: each failed attempt decides
// its own delay (server-supplied or jittered) before returning a
// retryable error.
type attemptDelay struct {
	next time.Duration
}

func (d *attemptDelay) NextBackOff() time.Duration { return d.next }
func (d *attemptDelay) Reset()                     {}

func (c *Client) newBackOff(ctx context.Context, d *attemptDelay) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(d, uint64(c.retries()-1)), ctx)
}

// ValidateToken performs the single "who am I" check. HTTP 200 means
// valid; 401, any other status and any transport error all mean
// invalid. No retries. The outcome is appended to the token recorder.
func (c *Client) ValidateToken(ctx context.Context, acct profile.Account) bool {
	entry := c.log().WithField("profile", acct.Identifier)
	if c.Stats != nil {
		c.Stats.TokensChecked.Add(1)
	}

	if ok, _ := tokenShape.MatchString(acct.Token); !ok {
		entry.Warn("Token does not look like a Discord token, checking anyway")
	}

	c.logConnection(entry, acct)

	valid := false
	doer, err := c.doer(acct)
	if err != nil {
		entry.Errorf("Error building HTTP client: %v", err)
	} else {
		req, err := c.newRequest(ctx, http.MethodGet, "/users/@me", acct)
		if err != nil {
			entry.Errorf("Error checking token: %v", err)
		} else if resp, err := doer.Do(req); err != nil {
			entry.Errorf("Error checking token: %v", err)
		} else {
			resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusOK:
				valid = true
			case http.StatusUnauthorized:
				entry.Error("Token is INVALID (401 Unauthorized)")
			default:
				entry.Errorf("Token check error. Status: %d", resp.StatusCode)
			}
		}
	}

	if valid {
		entry.Info("Token is VALID")
		if c.Stats != nil {
			c.Stats.TokensValid.Add(1)
		}
		if c.Tokens != nil {
			c.Tokens.Valid(acct)
		}
		return true
	}

	if c.Stats != nil {
		c.Stats.TokensInvalid.Add(1)
	}
	if c.Tokens != nil {
		c.Tokens.Invalid(acct)
	}
	return false
}

// Guilds enumerates the account's guild memberships. Returns an empty
// list on any terminal failure; the retry contract is documented on the
// package.
func (c *Client) Guilds(ctx context.Context, acct profile.Account) []Guild {
	entry := c.log().WithField("profile", acct.Identifier)
	c.logConnection(entry, acct)

	doer, err := c.doer(acct)
	if err != nil {
		entry.Errorf("Error building HTTP client: %v", err)
		return nil
	}

	var guilds []Guild
	delay := &attemptDelay{}
	attempt := 0

	op := func() error {
		attempt++
		entry.Infof("Getting guilds... (attempt #%d)", attempt)

		req, err := c.newRequest(ctx, http.MethodGet, "/users/@me/guilds", acct)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := doer.Do(req)
		if err != nil {
			entry.Errorf("Network error: %v. Attempt #%d", err, attempt)
			delay.next = c.jitter(3, 6)
			return errors.Wrap(err, "get guilds")
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(&guilds); err != nil {
				entry.Errorf("JSON parsing error: %v", err)
				guilds = nil
				return backoff.Permanent(errors.Wrap(err, "decode guilds"))
			}
			entry.Infof("Received %d guilds", len(guilds))
			return nil
		case http.StatusUnauthorized:
			entry.Error("Invalid token (401 Unauthorized)")
			return backoff.Permanent(errors.New("401 unauthorized"))
		case http.StatusTooManyRequests:
			d := c.retryAfter(resp)
			entry.Warnf("Rate limited (429). Waiting %s before retry #%d", d, attempt)
			delay.next = d
			return errors.New("rate limited")
		case http.StatusInternalServerError, http.StatusServiceUnavailable:
			entry.Warnf("Discord server error (%d). Retry #%d", resp.StatusCode, attempt)
			delay.next = c.jitter(5, 10)
			return errors.Errorf("server error %d", resp.StatusCode)
		default:
			entry.Errorf("Failed to get guilds. Status: %d", resp.StatusCode)
			return backoff.Permanent(errors.Errorf("status %d", resp.StatusCode))
		}
	}

	if err := backoff.Retry(op, c.newBackOff(ctx, delay)); err != nil {
		entry.Errorf("Failed to get guilds after %d attempts", attempt)
		return nil
	}
	return guilds
}

// LeaveGuild removes the account from a guild. Returns success and, on
// failure, a human-readable reason. 404 counts as success so the
// operation is safely re-runnable. Every attempt is preceded by a
// randomized pacing delay; Discord rate limits per route independently
// of 429 signaling, and pacing keeps us under it.
func (c *Client) LeaveGuild(ctx context.Context, acct profile.Account, g Guild) (bool, string) {
	entry := c.log().WithField("profile", acct.Identifier)

	doer, err := c.doer(acct)
	if err != nil {
		return false, fmt.Sprintf("HTTP client error: %v", err)
	}

	paceMin, paceMax := c.PaceMin, c.PaceMax
	if paceMax <= 0 {
		paceMin, paceMax = 5, 10
	}

	var reason string
	delay := &attemptDelay{}
	attempt := 0

	op := func() error {
		attempt++
		sleepCtx(ctx, c.jitter(paceMin, paceMax))
		if ctx.Err() != nil {
			reason = fmt.Sprintf("Canceled: %v", ctx.Err())
			return backoff.Permanent(ctx.Err())
		}

		req, err := c.newRequest(ctx, http.MethodDelete, "/users/@me/guilds/"+g.ID, acct)
		if err != nil {
			reason = fmt.Sprintf("Request error: %v", err)
			return backoff.Permanent(err)
		}
		resp, err := doer.Do(req)
		if err != nil {
			entry.Errorf("Request error: %v. Attempt #%d", err, attempt)
			reason = fmt.Sprintf("Timeout: %v", err)
			delay.next = c.jitter(3, 6)
			return errors.Wrap(err, "leave guild")
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusNoContent:
			entry.Infof("Left guild '%s' (ID: %s)", g.Name, g.ID)
			reason = ""
			return nil
		case http.StatusNotFound:
			entry.Warnf("Guild '%s' not found (404). Already left?", g.Name)
			reason = ""
			return nil
		case http.StatusUnauthorized:
			entry.Error("Invalid token (401 Unauthorized)")
			reason = "401 Unauthorized - Invalid token"
			return backoff.Permanent(errors.New(reason))
		case http.StatusForbidden:
			entry.Errorf("No permission to leave guild '%s' (403 Forbidden)", g.Name)
			reason = "403 Forbidden - No permission"
			return backoff.Permanent(errors.New(reason))
		case http.StatusTooManyRequests:
			d := c.retryAfter(resp)
			entry.Warnf("Rate limited (429). Waiting %s before retry #%d", d, attempt)
			delay.next = d
			return errors.New("rate limited")
		default:
			entry.Errorf("Failed to leave guild. Status: %d", resp.StatusCode)
			reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
			delay.next = c.jitter(3, 6)
			return errors.Errorf("status %d", resp.StatusCode)
		}
	}

	if err := backoff.Retry(op, c.newBackOff(ctx, delay)); err != nil {
		entry.Errorf("Failed to leave guild '%s': %s", g.Name, reason)
		if reason == "" {
			reason = fmt.Sprintf("Failed after %d attempts", c.retries())
		}
		return false, reason
	}
	return true, ""
}

func (c *Client) newRequest(ctx context.Context, method, path string, acct profile.Account) (*http.Request, error) {
	req, err := httpx.NewRequest(ctx, method, c.baseURL()+path, nil, acct.UserAgent)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", acct.Token)
	return req, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
