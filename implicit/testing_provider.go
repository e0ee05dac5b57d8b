package implicit

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"html/template"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestSessionCookie is the name of the cookie TestProvider uses to remember a
// logged in user agent.
const TestSessionCookie = "tp_session"

// TestProvider is a local implicit flow provider which makes writing tests
// much easier.  It serves, below /{version}:
//	/authorize  redirects with a fragment (or form_post) response
//	/logout     ends the session and redirects to post_logout_redirect_uri
//	/.well-known/openid-configuration and /keys for id_token verification
//
// An authorize request without a session cookie behaves like a user who logs
// in interactively, unless it has prompt=none; then login_required is returned.
type TestProvider struct {
	httpServer *httptest.Server
	jwks       *jose.JSONWebKeySet

	mu                  sync.Mutex
	version             string
	clientID            string
	allowedRedirectURIs []string
	subject             string
	customClaims        map[string]interface{}
	customAudience      string
	expiresIn           time.Duration
	omitState           bool
	replyState          string
	providerError       string
	sessions            map[string]string
	authorizeRequests   []url.Values
	logouts             int

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// testKeyID is the kid of the TestProvider's signing key
const testKeyID = "test-provider-key"

// StartTestProvider creates a disposable TestProvider which is stopped when
// the test completes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	p := &TestProvider{
		version:             "v2.0",
		clientID:            "test-client-id",
		allowedRedirectURIs: []string{"https://example.com/callback"},
		subject:             "alice@example.com",
		expiresIn:           time.Hour,
		sessions:            map[string]string{},
		t:                   t,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(ioutil.Discard, "", 0)
	p.httpServer.Start()
	t.Cleanup(p.httpServer.Close)
	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL (the authority) for the test provider's
// running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// Version returns the protocol version path segment served.
func (p *TestProvider) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Issuer returns {authority}/{version}
func (p *TestProvider) Issuer() string { return p.Addr() + "/" + p.Version() }

// SetVersion configures the protocol version path segment. It defaults to
// v2.0
func (p *TestProvider) SetVersion(v string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.version = v
}

// SetClientID configures the only client id accepted.
func (p *TestProvider) SetClientID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = id
}

// SetAllowedRedirectURIs configures the allowed redirect URIs.  If not
// configured a sample of "https://example.com/callback" is used.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims lets you set claims to return in the issued tokens.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in issued tokens.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetExpiresIn configures the lifetime of issued tokens.
func (p *TestProvider) SetExpiresIn(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = d
}

// OmitState forces responses which don't echo the request's state.
func (p *TestProvider) OmitState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitState = true
}

// SetReplyState forces responses to carry state s instead of the request's.
func (p *TestProvider) SetReplyState(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyState = s
}

// SetProviderError forces every authorize request to fail with errorCode.
func (p *TestProvider) SetProviderError(errorCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.providerError = errorCode
}

// NewSession starts a logged in session for the configured subject and returns
// its cookie.
func (p *TestProvider) NewSession() *http.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newSession()
}

func (p *TestProvider) newSession() *http.Cookie {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	require.NoError(p.t, err)
	id := hex.EncodeToString(b)
	p.sessions[id] = p.subject
	return &http.Cookie{Name: TestSessionCookie, Value: id, Path: "/", HttpOnly: true}
}

// AuthorizeRequests returns the query of every authorize request received.
func (p *TestProvider) AuthorizeRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.authorizeRequests...)
}

// Logouts returns the number of logout requests received.
func (p *TestProvider) Logouts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logouts
}

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// IssueToken returns a token signed by the provider for the configured
// client and subject.
func (p *TestProvider) IssueToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issueToken(p.subject)
}

func (p *TestProvider) issueToken(subject string) string {
	stdClaims := jwt.Claims{
		Subject:   subject,
		Issuer:    p.Addr() + "/" + p.version,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now().Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(time.Now().Add(p.expiresIn)),
		Audience:  jwt.Audience{p.clientID},
	}
	if p.customAudience != "" {
		stdClaims.Audience = jwt.Audience{p.customAudience}
	}
	var privateClaims interface{}
	if len(p.customClaims) > 0 {
		privateClaims = p.customClaims
	}
	return TestSignJWT(p.t, p.ecdsaPrivateKey, testKeyID, stdClaims, privateClaims)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) isAllowedRedirect(uri string) bool {
	for _, a := range p.allowedRedirectURIs {
		if a == uri {
			return true
		}
	}
	return false
}

// writeAuthResponse replies to an authorize request with params, either as a
// redirect fragment or as a form_post page.
func (p *TestProvider) writeAuthResponse(w http.ResponseWriter, req *http.Request, params [][2]string) {
	qv := req.URL.Query()
	if !p.omitState {
		state := qv.Get("state")
		if p.replyState != "" {
			state = p.replyState
		}
		params = append(params, [2]string{"state", state})
	}
	if qv.Get("response_mode") == string(ResponseModeFormPost) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = testFormPostTmpl.Execute(w, struct {
			Action string
			Params [][2]string
		}{qv.Get("redirect_uri"), params})
		return
	}
	f := Fragment{}
	for _, kv := range params {
		f[kv[0]] = kv[1]
	}
	http.Redirect(w, req, qv.Get("redirect_uri")+"#"+f.Encode(), http.StatusFound)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	params := [][2]string{{"error", errorCode}}
	if errorMessage != "" {
		params = append(params, [2]string{"error_description", errorMessage})
	}
	p.writeAuthResponse(w, req, params)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	prefix := "/" + p.version
	switch req.URL.Path {
	case prefix + "/.well-known/openid-configuration":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer        string   `json:"issuer"`
			AuthEndpoint  string   `json:"authorization_endpoint"`
			EndSession    string   `json:"end_session_endpoint"`
			JWKSURI       string   `json:"jwks_uri"`
			ResponseTypes []string `json:"response_types_supported"`
			Algs          []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:        p.Addr() + prefix,
			AuthEndpoint:  p.Addr() + prefix + "/authorize",
			EndSession:    p.Addr() + prefix + "/logout",
			JWKSURI:       p.Addr() + prefix + "/keys",
			ResponseTypes: []string{"token", "id_token"},
			Algs:          []string{"ES256"},
		}
		_ = p.writeJSON(w, &reply)

	case prefix + "/keys":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case prefix + "/authorize":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		p.authorizeRequests = append(p.authorizeRequests, qv)

		// never redirect to a URI the client didn't register
		if !p.isAllowedRedirect(qv.Get("redirect_uri")) {
			http.Error(w, "redirect_uri is not allowed", http.StatusBadRequest)
			return
		}
		if qv.Get("client_id") != p.clientID {
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "unknown client_id")
			return
		}
		if p.providerError != "" {
			p.writeAuthErrorResponse(w, req, p.providerError, "forced provider error")
			return
		}
		responseType := qv.Get("response_type")
		if responseType != string(TokenTypeAccessToken) && responseType != string(TokenTypeIDToken) {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}

		var subject string
		if c, err := req.Cookie(TestSessionCookie); err == nil {
			subject = p.sessions[c.Value]
		}
		if subject == "" {
			if qv.Get("prompt") == "none" {
				p.writeAuthErrorResponse(w, req, "login_required", "user must sign in")
				return
			}
			// an interactive request stands for a user who just logged in
			c := p.newSession()
			http.SetCookie(w, c)
			subject = p.subject
		}

		tk := p.issueToken(subject)
		var params [][2]string
		switch TokenType(responseType) {
		case TokenTypeIDToken:
			params = append(params, [2]string{"id_token", tk})
		default:
			params = append(params,
				[2]string{"access_token", tk},
				[2]string{"token_type", "Bearer"},
				[2]string{"expires_in", strconv.Itoa(int(p.expiresIn.Seconds()))},
			)
		}
		p.writeAuthResponse(w, req, params)

	case prefix + "/logout":
		p.logouts++
		if c, err := req.Cookie(TestSessionCookie); err == nil {
			delete(p.sessions, c.Value)
		}
		http.SetCookie(w, &http.Cookie{Name: TestSessionCookie, Value: "", Path: "/", MaxAge: -1})
		redirect := req.URL.Query().Get("post_logout_redirect_uri")
		if !p.isAllowedRedirect(redirect) {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, req, redirect, http.StatusFound)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// testFormPostTmpl renders a form_post response, see:
// https://openid.net/specs/oauth-v2-form-post-response-mode-1_0.html#FormPostResponseExample
var testFormPostTmpl = template.Must(template.New("form_post").Parse(`<html>
<head><title>Submit This Form</title></head>
<body onload="javascript:document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{range .Params}}<input type="hidden" id="{{index . 0}}" name="{{index . 0}}" value="{{index . 1}}"/>
{{end}}</form>
</body>
</html>`))

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				KeyID:     testKeyID,
				Algorithm: string(jose.ES256),
				Use:       "sig",
			},
		},
	}
}
