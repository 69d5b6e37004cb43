// Package cli provides the interactive BANTX command-line client.
//
// It talks to the HTTP API through internal/client/api and keeps the session
// in memory: the access token on the client, the refresh token in its cookie
// jar. Commands can be typed at the REPL or given once on the command line,
// e.g. "bantx-cli -a https://api.example.com provision".
//
// Besides the account commands it can generate an RS256 key pair for the
// server (keygen) and provision the first admin account (provision).
package cli
