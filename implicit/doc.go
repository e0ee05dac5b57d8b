// Package implicit drives the OAuth 2.0 implicit grant for one relying party.
// A Driver builds authorization and logout navigations, consumes the
// provider's redirect fragment after checking its anti-replay state, keeps the
// token in a Storage and renews it silently through a hidden Frame.
//
// The user agent is reached through small interfaces (Navigator, Storage,
// FrameOpener and optionally ReactiveChanger), so the flow runs the same in a
// browser bridge, a command line program or a test.
package implicit
