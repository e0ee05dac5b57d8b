package implicit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/FairVenturesLab/implicit-auth/internal/httpclient"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
)

// Verifier verifies id_tokens issued by the provider at {authority}/{version}:
// signature (against the provider's published keys), issuer, audience
// (the client id) and expiry.
type Verifier struct {
	client   *http.Client
	verifier *oidc.IDTokenVerifier
	logger   hclog.Logger

	mu sync.Mutex

	// backgroundCtx is used by the key set to fetch the provider's keys after
	// NewVerifier returns.
	backgroundCtx       context.Context
	backgroundCtxCancel context.CancelFunc
}

// ensure that Verifier implements the TokenVerifier interface
var _ TokenVerifier = (*Verifier)(nil)

// NewVerifier discovers the provider's configuration, which requires an http
// request to {authority}/{version}/.well-known/openid-configuration.
//
// See Verifier.Done() which must be called to release verifier resources.
// Supported options:
//	WithLogger
//	WithNow
//	WithProviderCA
//	WithSupportedSigningAlgs
func NewVerifier(ctx context.Context, c *Config, opt ...Option) (*Verifier, error) {
	const op = "implicit.NewVerifier"
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	opts := getVerifierOpts(opt...)
	client, err := httpclient.New(opts.withProviderCA)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %s: %w", op, err, ErrInvalidParameter)
	}

	bgCtx, cancel := context.WithCancel(oidc.ClientContext(context.Background(), client))
	v := &Verifier{
		client:              client,
		logger:              opts.withLogger,
		backgroundCtx:       bgCtx,
		backgroundCtxCancel: cancel,
	}
	// discovery honors the caller's ctx, while the key set keeps using the
	// background ctx
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), c.Issuer())
	if err != nil {
		v.Done()
		return nil, fmt.Errorf("%s: unable to discover provider: %w", op, err)
	}
	var claims struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&claims); err != nil || claims.JWKSURI == "" {
		v.Done()
		return nil, fmt.Errorf("%s: provider has no jwks_uri: %w", op, ErrInvalidParameter)
	}
	keySet := oidc.NewRemoteKeySet(v.backgroundCtx, claims.JWKSURI)
	v.verifier = oidc.NewVerifier(c.Issuer(), keySet, &oidc.Config{
		ClientID:             c.ClientID,
		SupportedSigningAlgs: opts.withSupportedSigningAlgs,
		Now:                  opts.withNowFunc,
	})
	return v, nil
}

// Done with the verifier's background resources and must be called for every
// Verifier created
func (v *Verifier) Done() {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.backgroundCtxCancel != nil {
		v.backgroundCtxCancel()
		v.backgroundCtxCancel = nil
	}
}

// VerifyIDToken implements TokenVerifier
func (v *Verifier) VerifyIDToken(ctx context.Context, rawIDToken string) error {
	const op = "Verifier.VerifyIDToken"
	if rawIDToken == "" {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if _, err := v.verifier.Verify(oidc.ClientContext(ctx, v.client), rawIDToken); err != nil {
		v.logger.Debug("id_token rejected", "error", err)
		return fmt.Errorf("%s: %s: %w", op, err, ErrIDTokenVerificationFailed)
	}
	return nil
}

// verifierOptions is the set of available options for Verifier functions
type verifierOptions struct {
	withLogger               hclog.Logger
	withNowFunc              func() time.Time
	withProviderCA           string
	withSupportedSigningAlgs []string
}

// verifierDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func verifierDefaults() verifierOptions {
	return verifierOptions{
		withLogger:               hclog.NewNullLogger(),
		withNowFunc:              time.Now,
		withSupportedSigningAlgs: []string{oidc.RS256},
	}
}

// getVerifierOpts gets the verifier defaults and applies the opt overrides
// passed in
func getVerifierOpts(opt ...Option) verifierOptions {
	opts := verifierDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithProviderCA provides an optional CA cert for requests to the provider
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifierOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithSupportedSigningAlgs provides an optional list of accepted id_token
// signing algorithms.  It defaults to RS256.
func WithSupportedSigningAlgs(algs ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifierOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}
