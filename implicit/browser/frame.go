package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/FairVenturesLab/implicit-auth/implicit"
	"github.com/FairVenturesLab/implicit-auth/internal/httpclient"
	"github.com/hashicorp/go-hclog"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/publicsuffix"
)

// ErrFrameClosed is returned when navigating a closed Frame.
var ErrFrameClosed = errors.New("frame is closed")

// maxBodySize bounds the html read while looking for a form_post response.
const maxBodySize = 1 << 20

// Opener creates headless frames for implicit.Driver.BackgroundLogin.
// Frames from one Opener share a cookie jar, which is how the provider's
// session (and so the silent login) carries over between renewals.
type Opener struct {
	redirect *url.URL
	jar      http.CookieJar
	caPEM    string
	logger   hclog.Logger
}

// ensure that Opener implements the implicit.FrameOpener interface
var _ implicit.FrameOpener = (*Opener)(nil)

// NewOpener creates an Opener for frames which stop when the provider
// redirects to redirectURI.
// Supported options:
//	WithCookieJar
//	WithProviderCA
//	WithLogger
func NewOpener(redirectURI string, opt ...implicit.Option) (*Opener, error) {
	const op = "browser.NewOpener"
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%s: redirect URI %q is invalid: %w", op, redirectURI, implicit.ErrInvalidParameter)
	}
	opts := getOpenerOpts(opt...)
	jar := opts.withCookieJar
	if jar == nil {
		jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create cookie jar: %w", op, err)
		}
	}
	if _, err := httpclient.Transport(opts.withProviderCA); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, implicit.ErrInvalidParameter)
	}
	return &Opener{
		redirect: u,
		jar:      jar,
		caPEM:    opts.withProviderCA,
		logger:   opts.withLogger,
	}, nil
}

// CookieJar returns the jar shared by the opener's frames.
func (o *Opener) CookieJar() http.CookieJar { return o.jar }

// OpenFrame implements implicit.FrameOpener.
func (o *Opener) OpenFrame(_ context.Context) (implicit.Frame, error) {
	const op = "Opener.OpenFrame"
	tr, err := httpclient.Transport(o.caPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f := &Frame{
		redirect: o.redirect,
		logger:   o.logger,
		location: implicit.BlankURL,
		tr:       tr,
	}
	f.client = &http.Client{
		Transport: tr,
		Jar:       o.jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if f.isRedirectTarget(req.URL) {
				return http.ErrUseLastResponse
			}
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
	return f, nil
}

// Frame is a headless, non-interactive user agent.  Navigate follows the
// provider's redirects until one targets the redirect URI, and reports that
// URL (fragment included) as the frame's location.
type Frame struct {
	redirect *url.URL
	client   *http.Client
	tr       *http.Transport
	logger   hclog.Logger

	mu       sync.Mutex
	location string
	closed   bool
}

// ensure that Frame implements the implicit.Frame interface
var _ implicit.Frame = (*Frame)(nil)

// Location returns the frame's current location.
func (f *Frame) Location() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location
}

func (f *Frame) setLocation(loc string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", ErrFrameClosed
	}
	f.location = loc
	return loc, nil
}

// Navigate implements implicit.Frame.  Navigating to implicit.BlankURL only
// resets the location.
func (f *Frame) Navigate(ctx context.Context, rawURL string) (string, error) {
	const op = "Frame.Navigate"
	if rawURL == implicit.BlankURL {
		return f.setLocation(implicit.BlankURL)
	}
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return "", fmt.Errorf("%s: %w", op, ErrFrameClosed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	loc, err := f.resolve(resp)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	f.logger.Trace("frame loaded", "status", resp.StatusCode)
	loc, err = f.setLocation(loc)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return loc, nil
}

// resolve works out the frame's location once the response has loaded.
func (f *Frame) resolve(resp *http.Response) (string, error) {
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		// stopped at the redirect URI; keep the Location header as sent so the
		// fragment's encoding survives
		raw := resp.Header.Get("Location")
		if u, err := url.Parse(raw); err == nil && u.IsAbs() {
			return raw, nil
		}
		u, err := resp.Request.URL.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid redirect location %q: %w", raw, err)
		}
		return u.String(), nil
	case resp.StatusCode == http.StatusOK && strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"):
		if loc, ok := f.formPost(resp.Body); ok {
			return loc, nil
		}
	}
	return resp.Request.URL.String(), nil
}

// formPost converts a response_mode=form_post page, whose form posts to the
// redirect URI, into the equivalent fragment response location.
func (f *Frame) formPost(body io.Reader) (string, bool) {
	root, err := html.Parse(io.LimitReader(body, maxBodySize))
	if err != nil {
		return "", false
	}
	form, ok := scrape.Find(root, scrape.ByTag(atom.Form))
	if !ok || !strings.EqualFold(scrape.Attr(form, "method"), "post") {
		return "", false
	}
	action := scrape.Attr(form, "action")
	actionURL, err := url.Parse(action)
	if err != nil || !f.isRedirectTarget(actionURL) {
		return "", false
	}
	params := implicit.Fragment{}
	for _, in := range scrape.FindAll(form, scrape.ByTag(atom.Input)) {
		if name := scrape.Attr(in, "name"); name != "" {
			params[name] = scrape.Attr(in, "value")
		}
	}
	actionURL.Fragment = ""
	return actionURL.String() + "#" + params.Encode(), true
}

func (f *Frame) isRedirectTarget(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, f.redirect.Scheme) &&
		strings.EqualFold(u.Host, f.redirect.Host) &&
		strings.TrimRight(u.Path, "/") == strings.TrimRight(f.redirect.Path, "/")
}

// Close implements implicit.Frame.  A closed frame can't be navigated again.
func (f *Frame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.tr.CloseIdleConnections()
	return nil
}

// openerOptions is the set of available options for NewOpener
type openerOptions struct {
	withCookieJar  http.CookieJar
	withProviderCA string
	withLogger     hclog.Logger
}

// openerDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func openerDefaults() openerOptions {
	return openerOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getOpenerOpts gets the opener defaults and applies the opt overrides passed
// in
func getOpenerOpts(opt ...implicit.Option) openerOptions {
	opts := openerDefaults()
	implicit.ApplyOpts(&opts, opt...)
	return opts
}

// WithCookieJar provides an optional cookie jar, so frames can share the
// provider session of an earlier interactive login.
func WithCookieJar(jar http.CookieJar) implicit.Option {
	return func(o interface{}) {
		if o, ok := o.(*openerOptions); ok {
			o.withCookieJar = jar
		}
	}
}

// WithProviderCA provides an optional CA cert for requests to the provider
func WithProviderCA(cert string) implicit.Option {
	return func(o interface{}) {
		if o, ok := o.(*openerOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithLogger provides an optional logger
func WithLogger(l hclog.Logger) implicit.Option {
	return func(o interface{}) {
		if o, ok := o.(*openerOptions); ok {
			o.withLogger = l
		}
	}
}
