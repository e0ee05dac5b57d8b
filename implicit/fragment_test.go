package implicit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFragment(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		hash      string
		want      Fragment
		wantErr   bool
		wantIsErr error
	}{
		{name: "empty", hash: "", want: nil},
		{name: "only-hash", hash: "#", want: nil},
		{name: "pairs", hash: "#a=1&b=2", want: Fragment{"a": "1", "b": "2"}},
		{name: "no-leading-hash", hash: "a=1", want: Fragment{"a": "1"}},
		{name: "split-on-first-equals", hash: "#a=b=c", want: Fragment{"a": "b=c"}},
		{name: "percent-decoded", hash: "#error_description=user%20must%20sign%20in", want: Fragment{"error_description": "user must sign in"}},
		{name: "plus-kept", hash: "#a=1+2", want: Fragment{"a": "1+2"}},
		{name: "key-only", hash: "#a", want: Fragment{"a": ""}},
		{name: "last-wins", hash: "#a=1&a=2", want: Fragment{"a": "2"}},
		{name: "bad-escape", hash: "#a=%zz", wantErr: true, wantIsErr: ErrMalformedFragment},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := ParseFragment(tt.hash)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestFragmentFromURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		location string
		want     Fragment
		wantErr  bool
	}{
		{name: "no-fragment", location: "https://app.example.com/callback", want: nil},
		{name: "empty-fragment", location: "https://app.example.com/callback#", want: nil},
		{
			name:     "token",
			location: "https://app.example.com/callback#access_token=abc&state=s1",
			want:     Fragment{"access_token": "abc", "state": "s1"},
		},
		{
			name:     "escapes-survive",
			location: "https://app.example.com/callback#error=login_required&error_description=a%26b",
			want:     Fragment{"error": "login_required", "error_description": "a&b"},
		},
		{
			name:     "escaped-amp-next-to-raw-brace",
			location: "https://example.com/cb#access_token=a%26b&note={x}",
			want:     Fragment{"access_token": "a&b", "note": "{x}"},
		},
		{
			name:     "escaped-amp-next-to-raw-quote",
			location: `https://example.com/cb#error_description=bad "quote"&x=a%26b`,
			want:     Fragment{"error_description": `bad "quote"`, "x": "a&b"},
		},
		{
			name:     "only-first-hash-splits",
			location: "https://example.com/cb#access_token=a#b&state=s1",
			want:     Fragment{"access_token": "a#b", "state": "s1"},
		},
		{name: "bad-escape", location: "https://example.com/cb#access_token=%zz", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := FragmentFromURL(tt.location)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, ErrMalformedFragment), "wanted \"%s\" but got \"%s\"", ErrMalformedFragment, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestFragment_Token(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		f         Fragment
		preferred TokenType
		want      string
		wantOk    bool
	}{
		{name: "access-token", f: Fragment{"access_token": "at"}, preferred: TokenTypeAccessToken, want: "at", wantOk: true},
		{name: "id-token", f: Fragment{"id_token": "it"}, preferred: TokenTypeIDToken, want: "it", wantOk: true},
		{name: "preferred-first", f: Fragment{"access_token": "at", "id_token": "it"}, preferred: TokenTypeIDToken, want: "it", wantOk: true},
		{name: "falls-back", f: Fragment{"id_token": "it"}, preferred: TokenTypeAccessToken, want: "it", wantOk: true},
		{name: "empty-ignored", f: Fragment{"access_token": ""}, preferred: TokenTypeAccessToken},
		{name: "none", f: Fragment{"state": "s"}, preferred: TokenTypeAccessToken},
		{name: "nil", f: nil, preferred: TokenTypeAccessToken},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			got, ok := tt.f.Token(tt.preferred)
			assert.Equal(tt.wantOk, ok)
			assert.Equal(tt.want, got)
		})
	}
}

func TestFragment_ErrorDescription(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	d, ok := Fragment{"error": "login_required", "error_description": "user must sign in"}.ErrorDescription()
	assert.True(ok)
	assert.Equal("user must sign in", d)

	d, ok = Fragment{"error": "login_required"}.ErrorDescription()
	assert.True(ok)
	assert.Equal("login_required", d)

	_, ok = Fragment{"access_token": "at"}.ErrorDescription()
	assert.False(ok)
}

func TestFragment_Encode(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	f := Fragment{"state": "s1", "error_description": "a b&c=d+e", "access_token": "x.y.z"}
	enc := f.Encode()
	assert.Equal("access_token=x.y.z&error_description=a%20b%26c%3Dd%2Be&state=s1", enc)

	got, err := ParseFragment("#" + enc)
	require.NoError(err)
	assert.Equal(f, got)
}
