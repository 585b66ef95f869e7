package scan

// Severity classifies how a finding affects the operator's verdict. Severity
// only affects display styling; any finding makes the scan unclean.
type Severity string

// Supported severities.
const (
	SeverityFail Severity = "fail"
	SeverityWarn Severity = "warn"
)

// RuleID identifies one policy rule.
type RuleID string

// Rule identifiers in evaluation order.
const (
	RuleBannedDirectory     RuleID = "banned-directory"
	RuleRiskyPackage        RuleID = "risky-package"
	RuleAutoStartPattern    RuleID = "auto-start-pattern"
	RuleCredentialPattern   RuleID = "credential-pattern"
	RuleBuildAllowlistDrift RuleID = "build-allowlist-drift"
)

// Finding reports one policy violation or warning.
type Finding struct {
	Rule     RuleID
	Severity Severity
	Location string
	Message  string
}

// Report aggregates the findings of one scan.
type Report struct {
	Findings []Finding
}

// Clean reports whether the scan produced zero findings of any severity.
func (report Report) Clean() bool {
	return len(report.Findings) == 0
}

// CountBySeverity tallies findings carrying the supplied severity.
func (report Report) CountBySeverity(severity Severity) int {
	severityCount := 0
	for _, finding := range report.Findings {
		if finding.Severity == severity {
			severityCount++
		}
	}
	return severityCount
}

// FindingsForRule returns the findings produced by the identified rule.
func (report Report) FindingsForRule(ruleIdentifier RuleID) []Finding {
	var ruleFindings []Finding
	for _, finding := range report.Findings {
		if finding.Rule == ruleIdentifier {
			ruleFindings = append(ruleFindings, finding)
		}
	}
	return ruleFindings
}
