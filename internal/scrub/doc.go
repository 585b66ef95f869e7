// Package scrub removes banned path prefixes from a working tree and from
// version-control tracking, and resets the root manifest's build allowlist to
// the expected set, recording one action per remediation.
package scrub
