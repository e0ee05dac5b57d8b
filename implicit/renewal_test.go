package implicit

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFrame answers navigations with respond; BlankURL loads immediately
// unless block is set.
type testFrame struct {
	respond func(ctx context.Context, loginURI string) (string, error)
	block   chan struct{}

	mu     sync.Mutex
	loads  []string
	closed int
}

func (f *testFrame) Navigate(ctx context.Context, u string) (string, error) {
	f.mu.Lock()
	f.loads = append(f.loads, u)
	f.mu.Unlock()
	if u == BlankURL {
		if f.block != nil {
			<-f.block
		}
		return BlankURL, nil
	}
	return f.respond(ctx, u)
}

func (f *testFrame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *testFrame) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type testOpener struct {
	frame *testFrame
	err   error
}

func (o *testOpener) OpenFrame(context.Context) (Frame, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.frame, nil
}

// echoState responds like a provider with a session would
func echoState(t *testing.T, extra string) func(context.Context, string) (string, error) {
	return func(_ context.Context, loginURI string) (string, error) {
		u, err := url.Parse(loginURI)
		require.NoError(t, err)
		q := u.Query()
		require.Equal(t, "none", q.Get("prompt"))
		return q.Get("redirect_uri") + "#" + extra + "&state=" + q.Get("state"), nil
	}
}

func TestDriver_BackgroundLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// never is closed once every subtest is done, releasing the loads that
	// never complete
	never := make(chan struct{})
	t.Cleanup(func() { close(never) })

	tests := []struct {
		name         string
		frame        *testFrame
		openErr      error
		timeout      time.Duration
		want         string
		wantErr      bool
		wantIsErr    error
		wantFallback bool
		wantClosed   int
	}{
		{
			name:       "renewed",
			frame:      &testFrame{respond: echoState(t, "access_token=renewed&expires_in=3600")},
			want:       "renewed",
			wantClosed: 1,
		},
		{
			name:         "login-required-falls-back",
			frame:        &testFrame{respond: echoState(t, "error=login_required&error_description=user%20must%20sign%20in")},
			wantFallback: true,
			wantClosed:   1,
		},
		{
			name: "no-fragment-falls-back",
			frame: &testFrame{respond: func(context.Context, string) (string, error) {
				return testRedirect, nil
			}},
			wantFallback: true,
			wantClosed:   1,
		},
		{
			name: "malformed-fragment-falls-back",
			frame: &testFrame{respond: func(context.Context, string) (string, error) {
				return testRedirect + "#access_token=%zz", nil
			}},
			wantFallback: true,
			wantClosed:   1,
		},
		{
			name: "state-mismatch",
			frame: &testFrame{respond: func(context.Context, string) (string, error) {
				return testRedirect + "#access_token=renewed&state=forged", nil
			}},
			wantErr:    true,
			wantIsErr:  ErrResponseStateInvalid,
			wantClosed: 1,
		},
		{
			name: "auth-load-never-completes",
			frame: &testFrame{respond: func(context.Context, string) (string, error) {
				<-never
				return "", errors.New("released")
			}},
			timeout:    50 * time.Millisecond,
			wantErr:    true,
			wantIsErr:  ErrRenewalTimeout,
			wantClosed: 1,
		},
		{
			name:       "blank-load-never-completes",
			frame:      &testFrame{block: never},
			timeout:    50 * time.Millisecond,
			wantErr:    true,
			wantIsErr:  ErrRenewalTimeout,
			wantClosed: 1,
		},
		{
			name: "navigation-honors-deadline",
			frame: &testFrame{respond: func(ctx context.Context, _ string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}},
			timeout:    50 * time.Millisecond,
			wantErr:    true,
			wantIsErr:  ErrRenewalTimeout,
			wantClosed: 1,
		},
		{
			name: "navigation-error",
			frame: &testFrame{respond: func(context.Context, string) (string, error) {
				return "", errors.New("connection refused")
			}},
			wantErr:    true,
			wantIsErr:  ErrRenewalFailed,
			wantClosed: 1,
		},
		{
			name:      "open-error",
			frame:     &testFrame{},
			openErr:   errors.New("no frames"),
			wantErr:   true,
			wantIsErr: ErrRenewalFailed,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			opts := []Option{WithFrameOpener(&testOpener{frame: tt.frame, err: tt.openErr})}
			if tt.timeout > 0 {
				opts = append(opts, WithRenewalTimeout(tt.timeout))
			}
			nav := &testNavigator{location: testRedirect}
			d, err := NewDriver(testConfig(t, testAuthority), NewMemoryStorage(), nav, opts...)
			require.NoError(err)

			got, err := d.BackgroundLogin(ctx)
			assert.Equal(tt.wantClosed, tt.frame.closeCount())
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				assert.False(d.LoggedIn())
				assert.Empty(nav.replacements())
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
			assert.Equal(tt.want, d.IDToken())

			replaced := nav.replacements()
			if !tt.wantFallback {
				assert.Empty(replaced)
				return
			}
			require.Len(replaced, 1)
			assert.True(strings.HasPrefix(replaced[0], testAuthority+"/v2.0/authorize?"))
			assert.False(strings.HasSuffix(replaced[0], "&prompt=none"))
		})
	}
	t.Run("blank-before-login", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		f := &testFrame{respond: echoState(t, "access_token=renewed")}
		d, err := NewDriver(testConfig(t, testAuthority), NewMemoryStorage(), &testNavigator{}, WithFrameOpener(&testOpener{frame: f}))
		require.NoError(err)
		_, err = d.BackgroundLogin(ctx)
		require.NoError(err)
		require.Len(f.loads, 2)
		assert.Equal(BlankURL, f.loads[0])
		assert.True(strings.HasSuffix(f.loads[1], "&prompt=none"))
	})
	t.Run("nil-opener", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		d, err := NewDriver(testConfig(t, testAuthority), NewMemoryStorage(), &testNavigator{})
		require.NoError(err)
		_, err = d.BackgroundLogin(ctx)
		assert.Truef(errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
	})
	t.Run("one-at-a-time", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		var inFlight, maxInFlight int32
		f := &testFrame{respond: func(ctx context.Context, loginURI string) (string, error) {
			n := atomic.AddInt32(&inFlight, 1)
			defer atomic.AddInt32(&inFlight, -1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return echoState(t, "access_token=renewed")(ctx, loginURI)
		}}
		d, err := NewDriver(testConfig(t, testAuthority), NewMemoryStorage(), &testNavigator{}, WithFrameOpener(&testOpener{frame: f}))
		require.NoError(err)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := d.BackgroundLogin(ctx)
				assert.NoError(err)
			}()
		}
		wg.Wait()
		assert.Equal(int32(1), atomic.LoadInt32(&maxInFlight))
		assert.Equal(4, f.closeCount())
	})
}

func TestRenewalPhase_String(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal("idle", phaseIdle.String())
	assert.Equal("awaiting-blank-load", phaseAwaitingBlankLoad.String())
	assert.Equal("awaiting-auth-load", phaseAwaitingAuthLoad.String())
	assert.Equal("done", phaseDone.String())
	assert.Equal("failed", phaseFailed.String())
	assert.Equal("unknown", renewalPhase(42).String())
}
