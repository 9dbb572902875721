package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteDoer redirects every request to the test server.
type rewriteDoer struct {
	base string
}

func (d rewriteDoer) Do(req *http.Request) (*http.Response, error) {
	base, err := url.Parse(d.base)
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.URL.Scheme = base.Scheme
	r.URL.Host = base.Host
	return http.DefaultClient.Do(r)
}

func TestCheckReportsNewerTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tag_name": "v1.2.0"}`))
	}))
	defer srv.Close()

	tag, newer, err := Check(context.Background(), rewriteDoer{base: srv.URL}, "v1.1.0")
	require.NoError(t, err)
	assert.True(t, newer)
	assert.Equal(t, "v1.2.0", tag)

	_, newer, err = Check(context.Background(), rewriteDoer{base: srv.URL}, "v1.2.0")
	require.NoError(t, err)
	assert.False(t, newer)
}

func TestCheckSkipsDevBuilds(t *testing.T) {
	tag, newer, err := Check(context.Background(), nil, "dev")
	require.NoError(t, err)
	assert.False(t, newer)
	assert.Empty(t, tag)
}

func TestCheckErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, _, err := Check(context.Background(), rewriteDoer{base: srv.URL}, "v1.0.0")
	assert.Error(t, err)
}
