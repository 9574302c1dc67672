// Package commands defines the enclavelink CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - url      Show or save the server address
//   - connect  Run the key exchange and print the session fingerprint
//   - send     Send one encrypted message, optionally waiting for a reply
//   - listen   Stay connected and print inbound messages
//
// # Implementation
//
// The root command loads the config file, builds the dependency graph
// (settings store, transport, session client) and configures logging before
// any subcommand runs. Address precedence is --url, then the saved address,
// then $ENCLAVELINK_URL, then the config file, then the built-in default.
package commands
