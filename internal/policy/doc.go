// Package policy declares the catalog of banned paths, risky packages, and the
// expected build allowlist enforced across the fork.
//
// The catalog is pure data: the scanner and scrub engine receive it as an
// explicit argument so tests can substitute their own catalogs without
// process-wide state.
package policy
