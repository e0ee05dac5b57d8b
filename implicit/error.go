package implicit

import (
	"errors"
)

var (
	ErrInvalidParameter          = errors.New("invalid parameter")
	ErrNilParameter              = errors.New("nil parameter")
	ErrMissingOption             = errors.New("missing required option")
	ErrInvalidTokenType          = errors.New("invalid token type")
	ErrInvalidAuthority          = errors.New("invalid authority")
	ErrStateGeneratorFailed      = errors.New("state generation failed")
	ErrResponseStateInvalid      = errors.New("token state does not match stored state")
	ErrMalformedFragment         = errors.New("malformed fragment")
	ErrMalformedSegment          = errors.New("malformed token segment")
	ErrMissingToken              = errors.New("token is missing")
	ErrIDTokenVerificationFailed = errors.New("id_token verification failed")
	ErrRenewalTimeout            = errors.New("background login timed out")
	ErrRenewalFailed             = errors.New("background login failed")
	ErrStorage                   = errors.New("storage failure")
	ErrNavigation                = errors.New("navigation failed")
)
