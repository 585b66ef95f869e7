package policy

import (
	"errors"
	"strings"
)

const (
	emptyBannedPathMessageConstant     = "catalog contains an empty banned path prefix"
	emptyRiskyPackageMessageConstant   = "catalog contains an empty risky package identifier"
	emptyAllowlistEntryMessageConstant = "catalog contains an empty build allowlist entry"
)

// Validation errors reported by Catalog.Validate.
var (
	ErrEmptyBannedPath     = errors.New(emptyBannedPathMessageConstant)
	ErrEmptyRiskyPackage   = errors.New(emptyRiskyPackageMessageConstant)
	ErrEmptyAllowlistEntry = errors.New(emptyAllowlistEntryMessageConstant)
)

// Catalog declares the policy enforced across the fork. Values are treated as
// immutable once constructed.
type Catalog struct {
	BannedPathPrefixes     []string `yaml:"banned_path_prefixes"`
	RiskyPackages          []string `yaml:"risky_packages"`
	ExpectedBuildAllowlist []string `yaml:"expected_build_allowlist"`
}

// DefaultCatalog returns the compiled-in policy catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		BannedPathPrefixes: []string{
			"extensions/telemetry",
			"extensions/auto-update",
			"extensions/remote-assist",
			"packages/native-messaging-host",
		},
		RiskyPackages: []string{
			"node-pty",
			"keytar",
			"robotjs",
			"serialport",
		},
		ExpectedBuildAllowlist: []string{
			"better-sqlite3",
			"esbuild",
			"sharp",
		},
	}
}

// Validate reports catalog entries that cannot be enforced.
func (catalog Catalog) Validate() error {
	for _, bannedPathPrefix := range catalog.BannedPathPrefixes {
		if len(strings.TrimSpace(bannedPathPrefix)) == 0 {
			return ErrEmptyBannedPath
		}
	}
	for _, riskyPackage := range catalog.RiskyPackages {
		if len(strings.TrimSpace(riskyPackage)) == 0 {
			return ErrEmptyRiskyPackage
		}
	}
	for _, allowlistEntry := range catalog.ExpectedBuildAllowlist {
		if len(strings.TrimSpace(allowlistEntry)) == 0 {
			return ErrEmptyAllowlistEntry
		}
	}
	return nil
}

// ExpectedBuildAllowlistSet returns the expected allowlist as a membership set.
func (catalog Catalog) ExpectedBuildAllowlistSet() map[string]struct{} {
	allowlistSet := make(map[string]struct{}, len(catalog.ExpectedBuildAllowlist))
	for _, allowlistEntry := range catalog.ExpectedBuildAllowlist {
		allowlistSet[allowlistEntry] = struct{}{}
	}
	return allowlistSet
}

// RiskyPackageSet returns the risky package identifiers as a membership set.
func (catalog Catalog) RiskyPackageSet() map[string]struct{} {
	riskySet := make(map[string]struct{}, len(catalog.RiskyPackages))
	for _, riskyPackage := range catalog.RiskyPackages {
		riskySet[riskyPackage] = struct{}{}
	}
	return riskySet
}
