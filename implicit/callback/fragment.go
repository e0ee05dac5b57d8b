// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/FairVenturesLab/implicit-auth/implicit"
)

// LocationSink receives the full redirect location (redirect URI plus
// fragment) captured by a Fragment handler.
type LocationSink func(location string)

// maxFormSize bounds a posted fragment
const maxFormSize = 64 << 10

// Fragment creates an implicit flow redirect handler for user agents that
// aren't the program itself.  The fragment of a redirect never reaches the
// server, so a GET is answered with a page whose script posts location.hash
// back; the POST hands redirectURI#fragment to sink.
//
// A POST without a "fragment" field is treated as a response_mode=form_post
// response and its fields become the fragment.
func Fragment(redirectURI string, sink LocationSink) (http.HandlerFunc, error) {
	const op = "callback.Fragment"
	if redirectURI == "" {
		return nil, fmt.Errorf("%s: redirect URI is empty: %w", op, implicit.ErrInvalidParameter)
	}
	if sink == nil {
		return nil, fmt.Errorf("%s: location sink is nil: %w", op, implicit.ErrNilParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			_ = relayTmpl.Execute(w, nil)

		case http.MethodPost:
			req.Body = http.MaxBytesReader(w, req.Body, maxFormSize)
			if err := req.ParseForm(); err != nil {
				http.Error(w, "unable to parse form", http.StatusBadRequest)
				return
			}
			fragment := req.PostForm.Get("fragment")
			if _, ok := req.PostForm["fragment"]; !ok {
				f := implicit.Fragment{}
				for k := range req.PostForm {
					f[k] = req.PostForm.Get(k)
				}
				fragment = f.Encode()
			}
			sink(redirectURI + "#" + fragment)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, "Login complete, you can close this window.")

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}, nil
}

var relayTmpl = template.Must(template.New("relay").Parse(`<!DOCTYPE html>
<html>
<head><title>Completing login</title></head>
<body>
<p id="status">Completing login...</p>
<script>
(function () {
	var body = "fragment=" + encodeURIComponent(window.location.hash.slice(1));
	fetch(window.location.pathname, {
		method: "POST",
		headers: {"Content-Type": "application/x-www-form-urlencoded"},
		body: body
	}).then(function (resp) { return resp.text(); }).then(function (text) {
		document.getElementById("status").textContent = text;
		history.replaceState(null, "", window.location.pathname);
	});
})();
</script>
</body>
</html>`))
