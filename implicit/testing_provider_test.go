package implicit

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestProvider(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	authorize := func(q url.Values) *http.Response {
		resp, err := client.Get(tp.Issuer() + "/authorize?" + q.Encode())
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}
	query := func(kv ...string) url.Values {
		q := url.Values{
			"client_id":     {testClientID},
			"response_type": {"token"},
			"redirect_uri":  {testRedirect},
			"state":         {"s1"},
		}
		for i := 0; i+1 < len(kv); i += 2 {
			q.Set(kv[i], kv[i+1])
		}
		return q
	}

	t.Run("disallowed-redirect", func(t *testing.T) {
		assert := assert.New(t)
		resp := authorize(query("redirect_uri", "https://evil.example.com"))
		assert.Equal(http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("unknown-client", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		resp := authorize(query("client_id", "nope"))
		require.Equal(http.StatusFound, resp.StatusCode)
		f, err := FragmentFromURL(resp.Header.Get("Location"))
		require.NoError(err)
		assert.Equal("unauthorized_client", f["error"])
		assert.Equal("s1", f["state"])
	})
	t.Run("interactive-sets-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		resp := authorize(query())
		require.Equal(http.StatusFound, resp.StatusCode)
		var session *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == TestSessionCookie {
				session = c
			}
		}
		require.NotNil(session)
		f, err := FragmentFromURL(resp.Header.Get("Location"))
		require.NoError(err)
		assert.NotEmpty(f["access_token"])
		assert.Equal("Bearer", f["token_type"])
		assert.Equal("3600", f["expires_in"])
	})
	t.Run("form-post", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		resp := authorize(query("response_mode", "form_post", "response_type", "id_token"))
		require.Equal(http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(err)
		assert.Contains(string(body), `action="`+testRedirect+`"`)
		assert.Contains(string(body), `name="id_token"`)
		assert.Contains(string(body), `name="state" value="s1"`)
	})
	t.Run("logout", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		before := tp.Logouts()
		resp, err := client.Get(tp.Issuer() + "/logout?post_logout_redirect_uri=" + url.QueryEscape(testRedirect))
		require.NoError(err)
		defer resp.Body.Close()
		assert.Equal(http.StatusFound, resp.StatusCode)
		assert.Equal(testRedirect, resp.Header.Get("Location"))
		assert.Equal(before+1, tp.Logouts())
	})
	t.Run("records-requests", func(t *testing.T) {
		assert := assert.New(t)
		found := false
		for _, q := range tp.AuthorizeRequests() {
			if strings.EqualFold(q.Get("response_mode"), "form_post") {
				found = true
			}
		}
		assert.True(found)
	})
}
