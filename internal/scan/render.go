package scan

import (
	"fmt"
	"io"
)

const (
	sectionHeaderTemplateConstant  = "== %s ==\n"
	passMarkerLineTemplateConstant = "[PASS] %s\n"
	failMarkerLineTemplateConstant = "[FAIL] %s: %s\n"
	warnMarkerLineTemplateConstant = "[WARN] %s: %s\n"
	rulePassMessageConstant        = "no findings"
	cleanSummaryLineConstant       = "Summary: clean\n"
	summaryLineTemplateConstant    = "Summary: %d failure(s), %d warning(s)\n"
)

// ReportRenderer writes scan reports as labeled per-rule sections.
type ReportRenderer struct{}

// Render prints one section per rule in evaluation order followed by a summary line.
func (renderer ReportRenderer) Render(writer io.Writer, ruleTitles []RuleTitle, report Report) error {
	for _, ruleTitle := range ruleTitles {
		if _, writeError := fmt.Fprintf(writer, sectionHeaderTemplateConstant, ruleTitle.Title); writeError != nil {
			return writeError
		}

		ruleFindings := report.FindingsForRule(ruleTitle.Identifier)
		if len(ruleFindings) == 0 {
			if _, writeError := fmt.Fprintf(writer, passMarkerLineTemplateConstant, rulePassMessageConstant); writeError != nil {
				return writeError
			}
			continue
		}

		for _, finding := range ruleFindings {
			markerTemplate := warnMarkerLineTemplateConstant
			if finding.Severity == SeverityFail {
				markerTemplate = failMarkerLineTemplateConstant
			}
			if _, writeError := fmt.Fprintf(writer, markerTemplate, finding.Location, finding.Message); writeError != nil {
				return writeError
			}
		}
	}

	if report.Clean() {
		_, writeError := fmt.Fprint(writer, cleanSummaryLineConstant)
		return writeError
	}

	_, writeError := fmt.Fprintf(
		writer,
		summaryLineTemplateConstant,
		report.CountBySeverity(SeverityFail),
		report.CountBySeverity(SeverityWarn),
	)
	return writeError
}
