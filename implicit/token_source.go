package implicit

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// driverTokenSource serves the driver's token, renewing it in the background
// when there is no valid token.
type driverTokenSource struct {
	ctx context.Context
	d   *Driver
}

// Token implements oauth2.TokenSource.  If the renewal fell back to an
// interactive login, ErrMissingToken is returned.
func (s *driverTokenSource) Token() (*oauth2.Token, error) {
	const op = "implicit.TokenSource.Token"
	if t, ok := s.d.Token(); ok && t.Valid() {
		return t, nil
	}
	tk, err := s.d.BackgroundLogin(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if tk == "" {
		return nil, fmt.Errorf("%s: interactive login required: %w", op, ErrMissingToken)
	}
	t, ok := s.d.Token()
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingToken)
	}
	return t, nil
}

// TokenSource returns an oauth2.TokenSource for the driver's token.  The
// token is reused until it expires, and then renewed with BackgroundLogin
// using ctx.
func (d *Driver) TokenSource(ctx context.Context) oauth2.TokenSource {
	current, _ := d.Token()
	return oauth2.ReuseTokenSource(current, &driverTokenSource{ctx: ctx, d: d})
}

// Client returns an http client which sends the driver's token as a bearer
// Authorization header.
func (d *Driver) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, d.TokenSource(ctx))
}
