// Package cmd implements the command-line interface of ibgw. It provides
// commands that talk to a gateway as a client and a fake gateway to run
// them against.
//
// The package is organized into several subpackages:
//
//   - query: Client commands (hist, account, bench)
//   - gateway: The fake-gateway command serving canned market data
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable with the prefix
// IBGW_ (e.g. IBGW_CLIENT_ID=7), .env and .env.local files are loaded first.
//
// See ibgw -help for a list of all commands.
package cmd
