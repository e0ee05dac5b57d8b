// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/FairVenturesLab/implicit-auth/implicit"
	"github.com/FairVenturesLab/implicit-auth/implicit/browser"
	"github.com/hashicorp/go-hclog"
)

// Listener serves the redirect URI on a loopback address and implements
// implicit.Navigator for programs which drive the system browser: Replace
// opens the browser and Location waits for the browser to come back to the
// redirect URI.
type Listener struct {
	redirectURI string
	open        func(string) error
	logger      hclog.Logger

	ln  net.Listener
	srv *http.Server

	mu        sync.Mutex
	pending   bool
	captured  chan string
	serveErrs chan error
}

// ensure that Listener implements the implicit.Navigator interface
var _ implicit.Navigator = (*Listener)(nil)

// NewListener listens on the host and port of redirectURI and starts serving
// its path with a Fragment handler.  Close must be called to stop it.
// Supported options:
//	WithOpenFunc
//	WithLogger
func NewListener(redirectURI string, opt ...implicit.Option) (*Listener, error) {
	const op = "callback.NewListener"
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%s: redirect URI %q is invalid: %w", op, redirectURI, implicit.ErrInvalidParameter)
	}
	opts := getListenerOpts(opt...)
	l := &Listener{
		redirectURI: redirectURI,
		open:        opts.withOpenFunc,
		logger:      opts.withLogger,
		captured:    make(chan string, 1),
		serveErrs:   make(chan error, 1),
	}
	handler, err := Fragment(redirectURI, l.capture)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	l.ln, err = net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to listen on %s: %w", op, u.Host, err)
	}
	l.srv = &http.Server{Handler: mux}
	go func() {
		if err := l.srv.Serve(l.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.serveErrs <- err
		}
	}()
	l.logger.Debug("listening for redirects", "addr", l.ln.Addr().String(), "path", path)
	return l, nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) capture(location string) {
	select {
	case l.captured <- location:
	default:
		l.logger.Warn("dropping redirect, an earlier one is still unread")
	}
}

// Replace implements implicit.Navigator by opening u in the browser.  The
// next call to Location waits for the browser's redirect.
func (l *Listener) Replace(_ context.Context, u string) error {
	const op = "Listener.Replace"
	l.mu.Lock()
	l.pending = true
	l.mu.Unlock()
	if err := l.open(u); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Location implements implicit.Navigator.  After a Replace it blocks until a
// redirect is captured or ctx is done; otherwise it returns the bare redirect
// URI, which has no fragment.
func (l *Listener) Location(ctx context.Context) (string, error) {
	const op = "Listener.Location"
	l.mu.Lock()
	pending := l.pending
	l.mu.Unlock()
	if !pending {
		return l.redirectURI, nil
	}
	select {
	case loc := <-l.captured:
		l.mu.Lock()
		l.pending = false
		l.mu.Unlock()
		return loc, nil
	case err := <-l.serveErrs:
		return "", fmt.Errorf("%s: redirect listener failed: %w", op, err)
	case <-ctx.Done():
		return "", fmt.Errorf("%s: waiting for redirect: %w", op, ctx.Err())
	}
}

// Close stops the listener.
func (l *Listener) Close() error {
	return l.srv.Close()
}

// listenerOptions is the set of available options for NewListener
type listenerOptions struct {
	withOpenFunc func(string) error
	withLogger   hclog.Logger
}

// listenerDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func listenerDefaults() listenerOptions {
	return listenerOptions{
		withOpenFunc: browser.OpenURL,
		withLogger:   hclog.NewNullLogger(),
	}
}

// getListenerOpts gets the listener defaults and applies the opt overrides
// passed in
func getListenerOpts(opt ...implicit.Option) listenerOptions {
	opts := listenerDefaults()
	implicit.ApplyOpts(&opts, opt...)
	return opts
}

// WithOpenFunc provides an optional func used to open URLs.  It defaults to
// browser.OpenURL.
func WithOpenFunc(fn func(string) error) implicit.Option {
	return func(o interface{}) {
		if o, ok := o.(*listenerOptions); ok {
			o.withOpenFunc = fn
		}
	}
}

// WithLogger provides an optional logger
func WithLogger(l hclog.Logger) implicit.Option {
	return func(o interface{}) {
		if o, ok := o.(*listenerOptions); ok {
			o.withLogger = l
		}
	}
}
