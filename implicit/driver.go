package implicit

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/oauth2"
)

// Navigator replaces the user agent's location.  Location returns the current
// URL (including its fragment) and Replace navigates away from it.
type Navigator interface {
	Location(ctx context.Context) (string, error)
	Replace(ctx context.Context, url string) error
}

// ReactiveChanger may be implemented by the authContext passed to
// Driver.Init.  It is notified with ("idToken", string) and then
// ("decodedToken", *DecodedToken) every time the token changes.
type ReactiveChanger interface {
	ReactiveChange(name string, value interface{})
}

// TokenVerifier verifies an id_token before the driver accepts it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, rawIDToken string) error
}

// Reactive change names
const (
	ChangeIDToken      = "idToken"
	ChangeDecodedToken = "decodedToken"
)

// Driver drives the oauth2 implicit flow for one relying party: it builds
// login and logout navigations, consumes redirect responses and keeps the
// resulting token in Storage.
type Driver struct {
	config   *Config
	storage  Storage
	nav      Navigator
	keys     StorageKeys
	frames   FrameOpener
	verifier TokenVerifier
	rand     io.Reader
	timeout  time.Duration
	logger   hclog.Logger
	nowFunc  func() time.Time

	mu      sync.Mutex
	idToken string
	token   *oauth2.Token
	host    ReactiveChanger

	// renewMu allows one BackgroundLogin at a time.
	renewMu sync.Mutex
}

// NewDriver creates a Driver.  The config is validated again, so a Driver is
// never built from an invalid Config.
// Supported options:
//	WithLogger
//	WithNow
//	WithStorageKeys
//	WithRandReader
//	WithFrameOpener
//	WithRenewalTimeout
//	WithTokenVerifier
func NewDriver(c *Config, s Storage, n Navigator, opt ...Option) (*Driver, error) {
	const op = "implicit.NewDriver"
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	if s == nil {
		return nil, fmt.Errorf("%s: storage is nil: %w", op, ErrNilParameter)
	}
	if n == nil {
		return nil, fmt.Errorf("%s: navigator is nil: %w", op, ErrNilParameter)
	}
	opts := getDriverOpts(opt...)
	if opts.withRenewalTimeout <= 0 {
		return nil, fmt.Errorf("%s: renewal timeout must be greater than zero: %w", op, ErrInvalidParameter)
	}
	return &Driver{
		config:   c,
		storage:  s,
		nav:      n,
		keys:     opts.withStorageKeys,
		frames:   opts.withFrameOpener,
		verifier: opts.withTokenVerifier,
		rand:     opts.withRandReader,
		timeout:  opts.withRenewalTimeout,
		logger:   opts.withLogger,
		nowFunc:  opts.withNowFunc,
	}, nil
}

// Config returns the driver's configuration.
func (d *Driver) Config() *Config { return d.config }

// Init binds the authContext and restores the session.  If the current
// location carries a redirect response with a token, its state is checked
// against the stored state and the token is stored; a mismatch returns
// ErrResponseStateInvalid.  When the location has no fragment, a previously
// stored token is restored instead.
//
// The stored state is removed once it matched, so calling Init again on a
// location that still carries the same redirect fragment (a page reload)
// returns ErrResponseStateInvalid.  Hosts should replace the location with
// one without the fragment after a successful Init.
//
// authContext may be nil; if it implements ReactiveChanger it is notified of
// token changes.
func (d *Driver) Init(ctx context.Context, authContext interface{}) error {
	const op = "Driver.Init"
	d.mu.Lock()
	d.host, _ = authContext.(ReactiveChanger)
	d.mu.Unlock()

	loc, err := d.nav.Location(ctx)
	if err != nil {
		return fmt.Errorf("%s: unable to read location: %s: %w", op, err, ErrNavigation)
	}
	f, err := FragmentFromURL(loc)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if f != nil {
		if _, err := d.consume(ctx, f); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	stored, ok, err := d.storage.Get(ctx, d.keys.IDToken)
	if err != nil {
		return fmt.Errorf("%s: unable to read stored token: %s: %w", op, err, ErrStorage)
	}
	if ok && stored != "" {
		d.logger.Debug("restoring stored token")
		if err := d.SetIDToken(ctx, stored); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// consume handles a parsed redirect response and returns the token it
// stored, if any.
func (d *Driver) consume(ctx context.Context, f Fragment) (string, error) {
	const op = "Driver.consume"
	tk, ok := f.Token(d.config.TokenType)
	if !ok {
		if desc, ok := f.ErrorDescription(); ok {
			d.logger.Warn("provider returned an error", "error_description", desc)
		}
		return "", nil
	}
	if err := d.checkState(ctx, f); err != nil {
		return "", err
	}
	if raw, ok := f["id_token"]; ok && d.verifier != nil {
		if err := d.verifier.VerifyIDToken(ctx, raw); err != nil {
			return "", fmt.Errorf("%s: %s: %w", op, err, ErrIDTokenVerificationFailed)
		}
	}
	if err := d.setToken(ctx, tk, f); err != nil {
		return "", err
	}
	return tk, nil
}

// checkState compares the response state with the stored state. A response
// without state is accepted.  The stored state is removed once it matched.
func (d *Driver) checkState(ctx context.Context, f Fragment) error {
	const op = "Driver.checkState"
	got, _ := f.State()
	if got == "" {
		d.logger.Warn("redirect response carries no state")
		return nil
	}
	want, _, err := d.storage.Get(ctx, d.keys.State)
	if err != nil {
		return fmt.Errorf("%s: unable to read stored state: %s: %w", op, err, ErrStorage)
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return fmt.Errorf("%s: %w", op, ErrResponseStateInvalid)
	}
	if err := d.storage.Delete(ctx, d.keys.State); err != nil {
		d.logger.Warn("unable to remove used state", "error", err)
	}
	return nil
}

// IDToken returns the current token, or "" when logged out.
func (d *Driver) IDToken() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idToken
}

// LoggedIn returns true when the driver holds a token.
func (d *Driver) LoggedIn() bool { return d.IDToken() != "" }

// Token returns the current token as an oauth2.Token.  The expiry comes from
// the redirect's expires_in, or the JWT's exp claim.
func (d *Driver) Token() (*oauth2.Token, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.token == nil {
		return nil, false
	}
	t := *d.token
	return &t, true
}

// DecodedToken decodes the current token on every call.  It returns
// ErrMissingToken before a token has been set.
func (d *Driver) DecodedToken() (*DecodedToken, error) {
	const op = "Driver.DecodedToken"
	tk := d.IDToken()
	if tk == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingToken)
	}
	return DecodeToken(tk)
}

// SetIDToken persists the token, keeps it in memory and notifies the
// authContext.
func (d *Driver) SetIDToken(ctx context.Context, token string) error {
	return d.setToken(ctx, token, nil)
}

func (d *Driver) setToken(ctx context.Context, token string, f Fragment) error {
	const op = "Driver.SetIDToken"
	if token == "" {
		return fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	if err := d.storage.Set(ctx, d.keys.IDToken, token); err != nil {
		return fmt.Errorf("%s: unable to store token: %s: %w", op, err, ErrStorage)
	}
	t := d.oauth2Token(token, f)

	d.mu.Lock()
	d.idToken = token
	d.token = t
	host := d.host
	d.mu.Unlock()

	d.logger.Debug("token updated", "type", t.TokenType, "expiry", t.Expiry)
	if host == nil {
		return nil
	}
	host.ReactiveChange(ChangeIDToken, token)
	decoded, err := DecodeToken(token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	host.ReactiveChange(ChangeDecodedToken, decoded)
	return nil
}

func (d *Driver) oauth2Token(token string, f Fragment) *oauth2.Token {
	t := &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}
	if tt := f["token_type"]; tt != "" {
		t.TokenType = tt
	}
	if secs, err := strconv.ParseInt(f["expires_in"], 10, 64); err == nil && secs > 0 {
		t.Expiry = d.nowFunc().Add(time.Duration(secs) * time.Second)
		return t
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := IDToken(token).Claims(&claims); err == nil && claims.Exp > 0 {
		t.Expiry = time.Unix(claims.Exp, 0)
	}
	return t
}

// State returns the stored anti-replay state of the last login attempt.
func (d *Driver) State(ctx context.Context) (string, bool, error) {
	const op = "Driver.State"
	s, ok, err := d.storage.Get(ctx, d.keys.State)
	if err != nil {
		return "", false, fmt.Errorf("%s: %s: %w", op, err, ErrStorage)
	}
	return s, ok, nil
}

// Login navigates to the provider's authorization endpoint.  Control is
// expected to leave the current page.
func (d *Driver) Login(ctx context.Context, silent bool) error {
	const op = "Driver.Login"
	u, err := d.MakeLoginURI(ctx, silent)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d.logger.Debug("navigating to login", "silent", silent)
	if err := d.nav.Replace(ctx, u); err != nil {
		return fmt.Errorf("%s: %s: %w", op, err, ErrNavigation)
	}
	return nil
}

// MakeLoginURI generates and stores a new state, then returns the
// authorization request URI embedding it.  When silent is true the URI ends
// with "&prompt=none", which fails instead of prompting the user.
func (d *Driver) MakeLoginURI(ctx context.Context, silent bool) (string, error) {
	const op = "Driver.MakeLoginURI"
	state, err := NewState(d.rand)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := d.storage.Set(ctx, d.keys.State, state); err != nil {
		return "", fmt.Errorf("%s: unable to store state: %s: %w", op, err, ErrStorage)
	}

	c := d.config
	var b strings.Builder
	b.WriteString(c.AuthorizeEndpoint())
	b.WriteString("?client_id=" + url.QueryEscape(c.ClientID))
	b.WriteString("&response_type=" + url.QueryEscape(string(c.TokenType)))
	b.WriteString("&redirect_uri=" + url.QueryEscape(c.RedirectURI))
	if c.Scope != "" {
		b.WriteString("&scope=" + url.QueryEscape(c.Scope))
	}
	if c.ResponseMode == ResponseModeFormPost {
		b.WriteString("&response_mode=" + string(ResponseModeFormPost))
	}
	if len(c.UILocales) > 0 {
		locales := make([]string, 0, len(c.UILocales))
		for _, l := range c.UILocales {
			locales = append(locales, l.String())
		}
		b.WriteString("&ui_locales=" + url.QueryEscape(strings.Join(locales, " ")))
	}
	b.WriteString("&state=" + state)
	if silent {
		b.WriteString("&prompt=none")
	}
	return b.String(), nil
}

// Logout clears the three stored keys and the in-memory token, then navigates
// to the provider's logout endpoint.  It doesn't wait for, or confirm, the
// provider ending its session.  Storage errors don't prevent the navigation;
// they are returned together with any navigation error.
func (d *Driver) Logout(ctx context.Context) error {
	const op = "Driver.Logout"
	var result *multierror.Error
	for _, k := range d.keys.All() {
		if err := d.storage.Delete(ctx, k); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: unable to delete %s: %s: %w", op, k, err, ErrStorage))
		}
	}
	d.mu.Lock()
	d.idToken = ""
	d.token = nil
	d.mu.Unlock()

	u := d.config.LogoutEndpoint() + "?post_logout_redirect_uri=" + url.QueryEscape(d.config.RedirectURI)
	d.logger.Debug("navigating to logout")
	if err := d.nav.Replace(ctx, u); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %s: %w", op, err, ErrNavigation))
	}
	return result.ErrorOrNil()
}

// DefaultRenewalTimeout bounds each frame load of a BackgroundLogin.
const DefaultRenewalTimeout = 10 * time.Second

// driverOptions is the set of available options for Driver functions
type driverOptions struct {
	withLogger         hclog.Logger
	withNowFunc        func() time.Time
	withStorageKeys    StorageKeys
	withRandReader     io.Reader
	withFrameOpener    FrameOpener
	withRenewalTimeout time.Duration
	withTokenVerifier  TokenVerifier
}

// driverDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func driverDefaults() driverOptions {
	return driverOptions{
		withLogger:         hclog.NewNullLogger(),
		withNowFunc:        time.Now,
		withStorageKeys:    DefaultStorageKeys,
		withRenewalTimeout: DefaultRenewalTimeout,
	}
}

// getDriverOpts gets the driver defaults and applies the opt overrides passed
// in
func getDriverOpts(opt ...Option) driverOptions {
	opts := driverDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithStorageKeys provides optional storage key names for the driver
func WithStorageKeys(k StorageKeys) Option {
	return func(o interface{}) {
		if o, ok := o.(*driverOptions); ok {
			o.withStorageKeys = k
		}
	}
}

// WithRandReader provides an optional source of randomness for state
// generation. It defaults to crypto/rand.
func WithRandReader(r io.Reader) Option {
	return func(o interface{}) {
		if o, ok := o.(*driverOptions); ok {
			o.withRandReader = r
		}
	}
}

// WithFrameOpener provides the hidden frames used by BackgroundLogin
func WithFrameOpener(f FrameOpener) Option {
	return func(o interface{}) {
		if o, ok := o.(*driverOptions); ok {
			o.withFrameOpener = f
		}
	}
}

// WithRenewalTimeout provides an optional bound on a BackgroundLogin
func WithRenewalTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*driverOptions); ok {
			o.withRenewalTimeout = d
		}
	}
}

// WithTokenVerifier provides an optional verifier for id_tokens received in
// redirect responses.
func WithTokenVerifier(v TokenVerifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*driverOptions); ok {
			o.withTokenVerifier = v
		}
	}
}
