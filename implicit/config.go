package implicit

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
)

// TokenType is the response_type requested from the provider.
type TokenType string

const (
	// TokenTypeAccessToken requests an oauth2 access_token.
	TokenTypeAccessToken TokenType = "token"

	// TokenTypeIDToken requests an oidc id_token.
	TokenTypeIDToken TokenType = "id_token"
)

// Valid returns true when the token type is one the driver supports.
func (t TokenType) Valid() bool {
	return t == TokenTypeAccessToken || t == TokenTypeIDToken
}

// Field returns the redirect response parameter which carries the token for
// this token type.
func (t TokenType) Field() string {
	if t == TokenTypeIDToken {
		return "id_token"
	}
	return "access_token"
}

// ResponseMode selects how the provider returns the authorization response.
type ResponseMode string

const (
	// ResponseModeFragment returns the response in the redirect URI's
	// fragment. It is the implicit flow's default and is never sent on the
	// authorize request.
	ResponseModeFragment ResponseMode = "fragment"

	// ResponseModeFormPost returns the response as an auto-submitting html
	// form posted to the redirect URI.
	ResponseModeFormPost ResponseMode = "form_post"
)

// Config represents the configuration for an oauth2 implicit flow relying
// party. The env tags name the variables read by ConfigFromEnv, and the same
// names are used when reporting a missing configuration option.
type Config struct {
	// Authority is the provider's base URI (for example
	// https://login.microsoftonline.com/common)
	Authority string `env:"TENANT"`

	// ClientID is the relying party id
	ClientID string `env:"CLIENT_ID"`

	// RedirectURI is where the provider sends the user agent after login and
	// logout requests.
	RedirectURI string `env:"REDIRECT_URI"`

	// OAuthVersion is the protocol version path segment which follows the
	// authority (for example v2.0 or oauth2)
	OAuthVersion string `env:"OAUTHVERSION"`

	// TokenType is the response_type requested: token or id_token.
	TokenType TokenType `env:"TOKENTYPE"`

	// Scope is an optional, space separated, scope string.
	Scope string `env:"SCOPE"`

	// UILocales is an optional list of preferred languages for the provider's
	// login pages.
	UILocales []language.Tag `env:"UI_LOCALES" envSeparator:","`

	// ResponseMode is optional and defaults to ResponseModeFragment.
	ResponseMode ResponseMode `env:"RESPONSE_MODE"`
}

// NewConfig composes a new config for an implicit flow driver.
// Supported options:
//	WithScope
//	WithUILocales
//	WithResponseMode
func NewConfig(authority, clientID, redirectURI, oauthVersion string, tokenType TokenType, opt ...Option) (*Config, error) {
	const op = "implicit.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Authority:    authority,
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		OAuthVersion: oauthVersion,
		TokenType:    tokenType,
		Scope:        opts.withScope,
		UILocales:    opts.withUILocales,
		ResponseMode: opts.withResponseMode,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// ConfigFromEnv reads a Config from the environment. The variables are named
// TENANT, CLIENT_ID, REDIRECT_URI, OAUTHVERSION, TOKENTYPE, SCOPE, UI_LOCALES
// and RESPONSE_MODE, each with the optional prefix.
func ConfigFromEnv(prefix string) (*Config, error) {
	const op = "implicit.ConfigFromEnv"
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: prefix}); err != nil {
		return nil, fmt.Errorf("%s: unable to parse environment: %w", op, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return &c, nil
}

// Validate the configuration. Required options are checked in order and the
// first one missing is named in the returned ErrMissingOption error. A token
// type other than "token" or "id_token" returns ErrInvalidTokenType.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	required := []struct {
		name  string
		value string
	}{
		{"TENANT", c.Authority},
		{"CLIENT_ID", c.ClientID},
		{"REDIRECT_URI", c.RedirectURI},
		{"OAUTHVERSION", c.OAuthVersion},
		{"TOKENTYPE", string(c.TokenType)},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s: %s is required: %w", op, r.name, ErrMissingOption)
		}
	}
	if !c.TokenType.Valid() {
		return fmt.Errorf("%s: %q is not one of token or id_token: %w", op, c.TokenType, ErrInvalidTokenType)
	}
	u, err := url.Parse(c.Authority)
	if err != nil {
		return fmt.Errorf("%s: authority %s is invalid: %s: %w", op, c.Authority, err, ErrInvalidAuthority)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%s: authority %s scheme is not http or https: %w", op, c.Authority, ErrInvalidAuthority)
	}
	switch c.ResponseMode {
	case "", ResponseModeFragment, ResponseModeFormPost:
	default:
		return fmt.Errorf("%s: unsupported response mode %q: %w", op, c.ResponseMode, ErrInvalidParameter)
	}
	return nil
}

// Issuer returns {authority}/{version}, which is also where the provider's
// discovery document is expected.
func (c *Config) Issuer() string {
	return strings.TrimRight(c.Authority, "/") + "/" + strings.Trim(c.OAuthVersion, "/")
}

// AuthorizeEndpoint returns {authority}/{version}/authorize
func (c *Config) AuthorizeEndpoint() string { return c.Issuer() + "/authorize" }

// LogoutEndpoint returns {authority}/{version}/logout
func (c *Config) LogoutEndpoint() string { return c.Issuer() + "/logout" }

// configOptions is the set of available options for NewConfig
type configOptions struct {
	withScope        string
	withUILocales    []language.Tag
	withResponseMode ResponseMode
}

// configDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScope provides an optional scope string for the config
func WithScope(scope string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScope = scope
		}
	}
}

// WithUILocales provides an optional list of end-user's preferred languages
// for the config.
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withUILocales = locales
		}
	}
}

// WithResponseMode provides an optional response mode for the config
func WithResponseMode(m ResponseMode) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withResponseMode = m
		}
	}
}
