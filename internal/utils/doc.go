// Package utils exposes configuration loading, logger construction, and
// output helpers shared by the forkguard commands.
package utils
