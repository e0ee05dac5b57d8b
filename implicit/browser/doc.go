/*
Package browser provides user agents for the implicit flow outside of a real
browser.

Opener creates headless frames for silent renewal.  A frame is an http client
with a cookie jar: it follows the provider's redirects until one targets the
redirect URI, and that URL (with its fragment) becomes the frame's location.
Providers which answer with a response_mode=form_post page are supported too;
the posted form is turned into the equivalent fragment.

	opener, err := browser.NewOpener("http://localhost:3000/callback")
	if err != nil {
		// handle error
	}
	d, err := implicit.NewDriver(cfg, storage, nav, implicit.WithFrameOpener(opener))
	if err != nil {
		// handle error
	}
	token, err := d.BackgroundLogin(ctx)

The provider session only carries over to a frame if its cookie is in the
opener's jar, see WithCookieJar.

OpenURL launches the operating system's browser for interactive logins.
*/
package browser
