// Package app wires application dependencies for the CLI.
//
// LoadConfig merges built-in defaults, the TOML config file and the
// environment. NewWire builds the settings store, transport, session client
// and connection service from the result.
package app
