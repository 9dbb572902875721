package discord

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valeria-popova/guildmgr/internal/aggregate"
	"github.com/valeria-popova/guildmgr/internal/httpx"
	"github.com/valeria-popova/guildmgr/internal/profile"
)

const testUnit = 5 * time.Millisecond

type recorder struct {
	mu      sync.Mutex
	valid   []string
	invalid []string
}

func (r *recorder) Valid(a profile.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valid = append(r.valid, a.Identifier)
}

func (r *recorder) Invalid(a profile.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalid = append(r.invalid, a.Identifier)
}

func newTestClient(baseURL string) (*Client, *aggregate.Stats, *recorder) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	stats := &aggregate.Stats{}
	rec := &recorder{}
	return &Client{
		BaseURL: baseURL,
		Retries: 3,
		PaceMin: 0.1,
		PaceMax: 0.2,
		Unit:    testUnit,
		Tokens:  rec,
		Stats:   stats,
		Log:     log,
	}, stats, rec
}

func testAccount() profile.Account {
	return profile.Account{Identifier: "1", Num: 1, Token: "tok", UserAgent: "ua"}
}

func TestValidateTokenStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		valid  bool
	}{
		{http.StatusOK, true},
		{http.StatusUnauthorized, false},
		{http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			assert.Equal(t, "/users/@me", r.URL.Path)
			assert.Equal(t, "tok", r.Header.Get("Authorization"))
			w.WriteHeader(tt.status)
		}))
		c, stats, rec := newTestClient(srv.URL)

		got := c.ValidateToken(context.Background(), testAccount())
		assert.Equal(t, tt.valid, got, "status %d", tt.status)
		assert.Equal(t, 1, calls, "no retries on the check endpoint")
		assert.Equal(t, int64(1), stats.TokensChecked.Load())
		if tt.valid {
			assert.Equal(t, []string{"1"}, rec.valid)
		} else {
			assert.Equal(t, []string{"1"}, rec.invalid)
		}
		srv.Close()
	}
}

func TestValidateTokenNetworkErrorIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c, stats, rec := newTestClient(srv.URL)
	assert.False(t, c.ValidateToken(context.Background(), testAccount()))
	assert.Equal(t, int64(1), stats.TokensInvalid.Load())
	assert.Equal(t, []string{"1"}, rec.invalid)
}

func TestGuildsParsesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/@me/guilds", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"100","name":"Alpha"},{"id":"200","name":"Beta"}]`)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	guilds := c.Guilds(context.Background(), testAccount())
	require.Len(t, guilds, 2)
	assert.Equal(t, Guild{ID: "100", Name: "Alpha"}, guilds[0])
}

func TestGuilds401ReturnsEmptyWithoutRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	assert.Empty(t, c.Guilds(context.Background(), testAccount()))
	assert.Equal(t, 1, calls)
}

func TestGuilds429SleepsServerDelayThenRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `[{"id":"100","name":"Alpha"}]`)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	start := time.Now()
	guilds := c.Guilds(context.Background(), testAccount())
	elapsed := time.Since(start)

	require.Len(t, guilds, 1)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, elapsed, 2*testUnit, "must honor Retry-After before the retry")
}

func TestGuildsServerErrorRetriesUpToCap(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	assert.Empty(t, c.Guilds(context.Background(), testAccount()))
	assert.Equal(t, 3, calls)
}

func TestGuildsBadJSONIsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	assert.Empty(t, c.Guilds(context.Background(), testAccount()))
	assert.Equal(t, 1, calls)
}

func TestLeaveGuildSuccessAndIdempotent404(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotFound} {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "/users/@me/guilds/100", r.URL.Path)
			w.WriteHeader(status)
		}))
		c, _, _ := newTestClient(srv.URL)

		ok, reason := c.LeaveGuild(context.Background(), testAccount(), Guild{ID: "100", Name: "Alpha"})
		assert.True(t, ok, "status %d", status)
		assert.Empty(t, reason)
		assert.Equal(t, 1, calls)
		srv.Close()
	}
}

func TestLeaveGuild403IsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	ok, reason := c.LeaveGuild(context.Background(), testAccount(), Guild{ID: "100", Name: "Alpha"})
	assert.False(t, ok)
	assert.Contains(t, reason, "Forbidden")
	assert.Equal(t, 1, calls)
}

func TestLeaveGuild401IsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	ok, reason := c.LeaveGuild(context.Background(), testAccount(), Guild{ID: "100", Name: "Alpha"})
	assert.False(t, ok)
	assert.Equal(t, "401 Unauthorized - Invalid token", reason)
}

func TestLeaveGuildOtherStatusRetriesThenReportsStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	ok, reason := c.LeaveGuild(context.Background(), testAccount(), Guild{ID: "100", Name: "Alpha"})
	assert.False(t, ok)
	assert.Equal(t, "HTTP 502", reason)
	assert.Equal(t, 3, calls)
}

func TestLeaveGuild429RetriesWithServerDelay(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	ok, reason := c.LeaveGuild(context.Background(), testAccount(), Guild{ID: "100", Name: "Alpha"})
	assert.True(t, ok)
	assert.Empty(t, reason)
	assert.Equal(t, 2, calls)
}

func TestLeaveGuildPacesBeforeFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	c.PaceMin, c.PaceMax = 2, 2

	start := time.Now()
	ok, _ := c.LeaveGuild(context.Background(), testAccount(), Guild{ID: "100", Name: "Alpha"})
	assert.True(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 2*testUnit)
}

func TestDoerFallsBackToDirectOnUnparsableProxy(t *testing.T) {
	c, _, _ := newTestClient("http://127.0.0.1:0")
	acct := testAccount()
	acct.Proxy = "not-a-proxy"

	called := false
	c.NewDoer = func(p httpx.Proxy, _ time.Duration) (httpx.Doer, error) {
		called = true
		assert.True(t, p.Empty())
		return http.DefaultClient, nil
	}
	_, err := c.doer(acct)
	require.NoError(t, err)
	assert.True(t, called)
}
