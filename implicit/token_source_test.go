package implicit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_TokenSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("renews-once-then-reuses", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		f := &testFrame{respond: echoState(t, "access_token=renewed&token_type=Bearer&expires_in=3600")}
		d, err := NewDriver(testConfig(t, testAuthority), NewMemoryStorage(), &testNavigator{}, WithFrameOpener(&testOpener{frame: f}))
		require.NoError(err)

		ts := d.TokenSource(ctx)
		for i := 0; i < 3; i++ {
			tk, err := ts.Token()
			require.NoError(err)
			assert.Equal("renewed", tk.AccessToken)
			assert.Equal("Bearer", tk.TokenType)
		}
		assert.Equal(1, f.closeCount())
	})
	t.Run("valid-token-is-not-renewed", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		f := &testFrame{respond: echoState(t, "access_token=renewed&expires_in=3600")}
		nav := &testNavigator{location: testRedirect + "#access_token=current&expires_in=3600"}
		d, err := NewDriver(testConfig(t, testAuthority), NewMemoryStorage(), nav, WithFrameOpener(&testOpener{frame: f}))
		require.NoError(err)
		require.NoError(d.Init(ctx, nil))

		tk, err := d.TokenSource(ctx).Token()
		require.NoError(err)
		assert.Equal("current", tk.AccessToken)
		assert.Equal(0, f.closeCount())
	})
	t.Run("interactive-login-required", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		f := &testFrame{respond: echoState(t, "error=login_required")}
		nav := &testNavigator{}
		d, err := NewDriver(testConfig(t, testAuthority), NewMemoryStorage(), nav, WithFrameOpener(&testOpener{frame: f}))
		require.NoError(err)

		_, err = d.TokenSource(ctx).Token()
		require.Error(err)
		assert.Truef(errors.Is(err, ErrMissingToken), "wanted \"%s\" but got \"%s\"", ErrMissingToken, err)
		assert.Len(nav.replacements(), 1)
	})
}

func TestDriver_Client(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	nav := &testNavigator{location: testRedirect + "#access_token=current&expires_in=3600"}
	d, err := NewDriver(testConfig(t, testAuthority), NewMemoryStorage(), nav)
	require.NoError(err)
	require.NoError(d.Init(ctx, nil))

	resp, err := d.Client(ctx).Get(srv.URL)
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusNoContent, resp.StatusCode)
	assert.Equal("Bearer current", gotAuth)
}
