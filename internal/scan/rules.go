package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

const (
	bannedDirectoryRuleTitleConstant     = "Banned directories"
	riskyPackageRuleTitleConstant        = "Risky packages in manifests"
	autoStartRuleTitleConstant           = "Auto-start patterns in extensions"
	credentialPatternRuleTitleConstant   = "Credential patterns in extensions"
	buildAllowlistDriftRuleTitleConstant = "Build allowlist drift"

	manifestFileNameConstant          = "package.json"
	extensionsDirectoryPrefixConstant = "extensions/"
	dependenciesBlockLabelConstant    = "dependencies"
	devDependenciesBlockLabelConstant = "devDependencies"

	bannedDirectoryMessageTemplateConstant     = "banned directory %s exists in the tree"
	riskyPackageMessageTemplateConstant        = "risky package %q declared in %s of %s"
	autoStartMessageTemplateConstant           = "periodic timer registered outside reviewed lifecycle in %s"
	credentialPatternMessageTemplateConstant   = "identifier %q matches a secret-key naming convention in %s"
	buildAllowlistDriftMessageTemplateConstant = "build allowlist entry %q is not in the expected allowlist"
	manifestParseErrorTemplateConstant         = "failed to parse manifest %s: %w"
)

var sourceFileExtensions = map[string]struct{}{
	".js":  {},
	".jsx": {},
	".ts":  {},
	".tsx": {},
	".mjs": {},
	".cjs": {},
}

var testFilePathMarkers = []string{".test.", ".spec."}

var credentialExcludedPathMarkers = []string{".test.", ".spec.", "fixture", "mock", "example"}

// credentialIdentifierTokens enumerates identifier spellings matched by the
// credential-pattern rule. The ahocorasick matcher prefilters file content and
// the word-boundary expression confirms whole-identifier matches.
var credentialIdentifierTokens = []string{
	"privateKey",
	"private_key",
	"PRIVATE_KEY",
	"secretKey",
	"secret_key",
	"SECRET_KEY",
	"apiSecret",
	"api_secret",
	"API_SECRET",
}

var (
	credentialIdentifierExpression = regexp.MustCompile(`\b(privateKey|private_key|PRIVATE_KEY|secretKey|secret_key|SECRET_KEY|apiSecret|api_secret|API_SECRET)\b`)
	fileScopeTimerExpression       = regexp.MustCompile(`(?m)^(?:export\s+)?(?:(?:const|let|var)\s+\w+\s*=\s*)?setInterval\s*\(`)
	activationEntryExpression      = regexp.MustCompile(`(?m)^\s*export\s+(?:async\s+)?function\s+(?:activate|register)\s*\(`)
	timerAnywhereExpression        = regexp.MustCompile(`setInterval\s*\(`)
)

var credentialTokenMatcher = ahocorasick.NewStringMatcher(credentialIdentifierTokens)

// rule pairs a rule identifier with its evaluation function. Rules are
// independent: each contributes zero or more findings without observing the
// others.
type rule struct {
	identifier RuleID
	severity   Severity
	title      string
	evaluate   func(snapshot treeSnapshot) ([]Finding, error)
}

// buildRuleTable declares the rules in their fixed evaluation order.
func buildRuleTable(scanner *Scanner) []rule {
	riskyPackageMatcher := ahocorasick.NewStringMatcher(scanner.catalog.RiskyPackages)

	return []rule{
		{
			identifier: RuleBannedDirectory,
			severity:   SeverityFail,
			title:      bannedDirectoryRuleTitleConstant,
			evaluate:   scanner.evaluateBannedDirectories,
		},
		{
			identifier: RuleRiskyPackage,
			severity:   SeverityFail,
			title:      riskyPackageRuleTitleConstant,
			evaluate: func(snapshot treeSnapshot) ([]Finding, error) {
				return scanner.evaluateRiskyPackages(snapshot, riskyPackageMatcher)
			},
		},
		{
			identifier: RuleAutoStartPattern,
			severity:   SeverityWarn,
			title:      autoStartRuleTitleConstant,
			evaluate:   scanner.evaluateAutoStartPatterns,
		},
		{
			identifier: RuleCredentialPattern,
			severity:   SeverityWarn,
			title:      credentialPatternRuleTitleConstant,
			evaluate:   scanner.evaluateCredentialPatterns,
		},
		{
			identifier: RuleBuildAllowlistDrift,
			severity:   SeverityWarn,
			title:      buildAllowlistDriftRuleTitleConstant,
			evaluate:   scanner.evaluateBuildAllowlistDrift,
		},
	}
}

// packageManifest models the manifest declaration blocks the rules inspect.
type packageManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Pnpm            struct {
		OnlyBuiltDependencies []string `json:"onlyBuiltDependencies"`
	} `json:"pnpm"`
}

func (scanner *Scanner) evaluateBannedDirectories(snapshot treeSnapshot) ([]Finding, error) {
	sortedPrefixes := append([]string{}, scanner.catalog.BannedPathPrefixes...)
	sort.Strings(sortedPrefixes)

	var findings []Finding
	for _, bannedPrefix := range sortedPrefixes {
		directoryPath := filepath.Join(snapshot.rootPath, filepath.FromSlash(bannedPrefix))
		directoryInfo, statError := os.Stat(directoryPath)
		if statError != nil || !directoryInfo.IsDir() {
			continue
		}
		findings = append(findings, Finding{
			Rule:     RuleBannedDirectory,
			Severity: SeverityFail,
			Location: bannedPrefix,
			Message:  fmt.Sprintf(bannedDirectoryMessageTemplateConstant, bannedPrefix),
		})
	}
	return findings, nil
}

func (scanner *Scanner) evaluateRiskyPackages(snapshot treeSnapshot, riskyPackageMatcher *ahocorasick.Matcher) ([]Finding, error) {
	sortedRiskyPackages := append([]string{}, scanner.catalog.RiskyPackages...)
	sort.Strings(sortedRiskyPackages)

	var findings []Finding
	for _, relativePath := range snapshot.filePaths {
		if filepath.Base(relativePath) != manifestFileNameConstant {
			continue
		}

		manifestContent, readError := snapshot.readFile(relativePath)
		if readError != nil {
			return nil, readError
		}

		if len(riskyPackageMatcher.Match(manifestContent)) == 0 {
			continue
		}

		var manifest packageManifest
		if unmarshalError := json.Unmarshal(manifestContent, &manifest); unmarshalError != nil {
			return nil, fmt.Errorf(manifestParseErrorTemplateConstant, relativePath, unmarshalError)
		}

		for _, riskyPackage := range sortedRiskyPackages {
			declarationBlock := ""
			if _, declaredDirect := manifest.Dependencies[riskyPackage]; declaredDirect {
				declarationBlock = dependenciesBlockLabelConstant
			} else if _, declaredDev := manifest.DevDependencies[riskyPackage]; declaredDev {
				declarationBlock = devDependenciesBlockLabelConstant
			}
			if len(declarationBlock) == 0 {
				continue
			}
			findings = append(findings, Finding{
				Rule:     RuleRiskyPackage,
				Severity: SeverityFail,
				Location: relativePath,
				Message:  fmt.Sprintf(riskyPackageMessageTemplateConstant, riskyPackage, declarationBlock, relativePath),
			})
		}
	}
	return findings, nil
}

func (scanner *Scanner) evaluateAutoStartPatterns(snapshot treeSnapshot) ([]Finding, error) {
	var findings []Finding
	for _, relativePath := range snapshot.filePaths {
		if !isExtensionSourceFile(relativePath) || pathContainsAnyMarker(relativePath, testFilePathMarkers) {
			continue
		}

		fileContent, readError := snapshot.readFile(relativePath)
		if readError != nil {
			return nil, readError
		}

		fileScopeTimer := fileScopeTimerExpression.Match(fileContent)
		registrationTimer := activationEntryExpression.Match(fileContent) && timerAnywhereExpression.Match(fileContent)
		if !fileScopeTimer && !registrationTimer {
			continue
		}

		findings = append(findings, Finding{
			Rule:     RuleAutoStartPattern,
			Severity: SeverityWarn,
			Location: relativePath,
			Message:  fmt.Sprintf(autoStartMessageTemplateConstant, relativePath),
		})
	}
	return findings, nil
}

func (scanner *Scanner) evaluateCredentialPatterns(snapshot treeSnapshot) ([]Finding, error) {
	var findings []Finding
	for _, relativePath := range snapshot.filePaths {
		if !isExtensionSourceFile(relativePath) || pathContainsAnyMarker(relativePath, credentialExcludedPathMarkers) {
			continue
		}

		fileContent, readError := snapshot.readFile(relativePath)
		if readError != nil {
			return nil, readError
		}

		if len(credentialTokenMatcher.Match(fileContent)) == 0 {
			continue
		}

		matchedIdentifier := credentialIdentifierExpression.Find(fileContent)
		if matchedIdentifier == nil {
			continue
		}

		findings = append(findings, Finding{
			Rule:     RuleCredentialPattern,
			Severity: SeverityWarn,
			Location: relativePath,
			Message:  fmt.Sprintf(credentialPatternMessageTemplateConstant, string(matchedIdentifier), relativePath),
		})
	}
	return findings, nil
}

func (scanner *Scanner) evaluateBuildAllowlistDrift(snapshot treeSnapshot) ([]Finding, error) {
	rootManifestPath := filepath.Join(snapshot.rootPath, manifestFileNameConstant)
	manifestContent, readError := os.ReadFile(rootManifestPath)
	if readError != nil {
		if os.IsNotExist(readError) {
			return nil, nil
		}
		return nil, readError
	}

	var manifest packageManifest
	if unmarshalError := json.Unmarshal(manifestContent, &manifest); unmarshalError != nil {
		return nil, fmt.Errorf(manifestParseErrorTemplateConstant, manifestFileNameConstant, unmarshalError)
	}

	expectedAllowlist := scanner.catalog.ExpectedBuildAllowlistSet()

	var findings []Finding
	for _, allowlistEntry := range manifest.Pnpm.OnlyBuiltDependencies {
		if _, expected := expectedAllowlist[allowlistEntry]; expected {
			continue
		}
		findings = append(findings, Finding{
			Rule:     RuleBuildAllowlistDrift,
			Severity: SeverityWarn,
			Location: manifestFileNameConstant,
			Message:  fmt.Sprintf(buildAllowlistDriftMessageTemplateConstant, allowlistEntry),
		})
	}
	return findings, nil
}

func isExtensionSourceFile(relativePath string) bool {
	if !strings.HasPrefix(relativePath, extensionsDirectoryPrefixConstant) {
		return false
	}
	_, isSourceExtension := sourceFileExtensions[filepath.Ext(relativePath)]
	return isSourceExtension
}

func pathContainsAnyMarker(relativePath string, markers []string) bool {
	lowercasePath := strings.ToLower(relativePath)
	for _, marker := range markers {
		if strings.Contains(lowercasePath, marker) {
			return true
		}
	}
	return false
}
