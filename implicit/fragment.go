package implicit

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Fragment is a parsed redirect response fragment.  A nil Fragment means the
// location carried no fragment at all, which callers must tell apart from a
// fragment that was present but parsed to nothing useful.
type Fragment map[string]string

// ParseFragment parses a location hash of the form "#k=v&k2=v2". The leading
// "#" is optional. Each pair is split on its first "=" and the value is
// percent-decoded ("+" is left alone). An empty hash returns a nil Fragment.
func ParseFragment(hash string) (Fragment, error) {
	const op = "implicit.ParseFragment"
	h := strings.TrimPrefix(hash, "#")
	if h == "" {
		return nil, nil
	}
	f := Fragment{}
	for _, kv := range strings.Split(h, "&") {
		k, v, _ := strings.Cut(kv, "=")
		dv, err := url.PathUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to decode %q: %s: %w", op, k, err, ErrMalformedFragment)
		}
		f[k] = dv
	}
	return f, nil
}

// FragmentFromURL parses the raw text after the first "#" of a location.
// The text is not normalized first, so "%26" always stays inside its value.
func FragmentFromURL(location string) (Fragment, error) {
	_, raw, ok := strings.Cut(location, "#")
	if !ok {
		return nil, nil
	}
	return ParseFragment(raw)
}

// State returns the response's state parameter, if any.
func (f Fragment) State() (string, bool) {
	s, ok := f["state"]
	return s, ok
}

// Token returns the token carried by the response.  The field for preferred
// is checked first and the other token field second.
func (f Fragment) Token(preferred TokenType) (string, bool) {
	fields := []string{preferred.Field(), TokenTypeAccessToken.Field(), TokenTypeIDToken.Field()}
	for _, name := range fields {
		if t, ok := f[name]; ok && t != "" {
			return t, true
		}
	}
	return "", false
}

// ErrorDescription returns the provider's error_description, falling back to
// the error code when no description was sent.
func (f Fragment) ErrorDescription() (string, bool) {
	if d, ok := f["error_description"]; ok {
		return d, true
	}
	if e, ok := f["error"]; ok {
		return e, true
	}
	return "", false
}

// Encode renders the fragment, without the leading "#", in key order.  Values
// are percent-encoded so ParseFragment reads them back unchanged.
func (f Fragment) Encode() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, url.QueryEscape(k)+"="+strings.ReplaceAll(url.QueryEscape(f[k]), "+", "%20"))
	}
	return strings.Join(pairs, "&")
}
