// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/FairVenturesLab/implicit-auth/implicit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirect = "http://localhost:3000/callback"

func TestFragment(t *testing.T) {
	t.Parallel()
	t.Run("invalid-args", func(t *testing.T) {
		assert := assert.New(t)
		_, err := Fragment("", func(string) {})
		assert.Truef(errors.Is(err, implicit.ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", implicit.ErrInvalidParameter, err)
		_, err = Fragment(testRedirect, nil)
		assert.Truef(errors.Is(err, implicit.ErrNilParameter), "wanted \"%s\" but got \"%s\"", implicit.ErrNilParameter, err)
	})

	tests := []struct {
		name       string
		method     string
		form       url.Values
		wantStatus int
		wantSink   string
		wantBody   string
	}{
		{
			name:       "get-serves-relay",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
			wantBody:   "location.hash",
		},
		{
			name:       "posted-fragment",
			method:     http.MethodPost,
			form:       url.Values{"fragment": {"access_token=abc&state=s1"}},
			wantStatus: http.StatusOK,
			wantSink:   testRedirect + "#access_token=abc&state=s1",
		},
		{
			name:       "empty-fragment",
			method:     http.MethodPost,
			form:       url.Values{"fragment": {""}},
			wantStatus: http.StatusOK,
			wantSink:   testRedirect + "#",
		},
		{
			name:       "form-post-response",
			method:     http.MethodPost,
			form:       url.Values{"id_token": {"abc"}, "state": {"s 1"}},
			wantStatus: http.StatusOK,
			wantSink:   testRedirect + "#id_token=abc&state=s%201",
		},
		{
			name:       "wrong-method",
			method:     http.MethodDelete,
			wantStatus: http.StatusMethodNotAllowed,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			var got []string
			h, err := Fragment(testRedirect, func(loc string) { got = append(got, loc) })
			require.NoError(err)

			var body io.Reader
			if tt.form != nil {
				body = strings.NewReader(tt.form.Encode())
			}
			req := httptest.NewRequest(tt.method, "/callback", body)
			if tt.form != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			w := httptest.NewRecorder()
			h(w, req)

			assert.Equal(tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(w.Body.String(), tt.wantBody)
			}
			if tt.wantSink == "" {
				assert.Empty(got)
				return
			}
			require.Len(got, 1)
			assert.Equal(tt.wantSink, got[0])
			_, err = implicit.FragmentFromURL(got[0])
			require.NoError(err)
		})
	}
}
