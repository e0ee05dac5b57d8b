// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// implicit-auth provides an oauth2 implicit flow driver: login and logout
// navigations, redirect fragment handling with anti-replay state, silent
// renewal in a hidden frame, and token storage.
//
// The flow itself lives in package implicit.  Package implicit/browser
// provides headless frames for silent renewal, implicit/callback serves the
// redirect URI for programs driving the system browser, and
// implicit/storage/keyring and implicit/storage/redis provide durable session
// storage.  cmd/implicit-auth is a command line login built on all of them.
package implicitauth
