// Package cli constructs the forkguard command-line interface, wiring the
// Cobra command hierarchy, configuration loader, and structured logging
// primitives behind the sync and scan subcommands.
package cli
