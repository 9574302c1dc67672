// Package connection drives a session on behalf of the CLI.
//
// It resolves which server to use from the saved settings and configured
// fallback, persists address changes, and wraps the session client with
// request/reply and listen helpers.
package connection
