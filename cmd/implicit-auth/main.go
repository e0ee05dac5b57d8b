// Command implicit-auth logs in to an OAuth 2.0 provider with the implicit
// flow and keeps the resulting token in the system keychain (or redis).
//
// The provider is configured through the environment:
//
//	TENANT        provider base URI
//	CLIENT_ID     client id registered with the provider
//	REDIRECT_URI  a loopback URI registered for the client, e.g. http://localhost:3000/callback
//	OAUTHVERSION  protocol version path segment, e.g. v2.0
//	TOKENTYPE     token or id_token
//	SCOPE         optional scope
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
