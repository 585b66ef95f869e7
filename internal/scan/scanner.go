package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/forkguard/forkguard/internal/policy"
)

const (
	gitMetadataDirectoryNameConstant = ".git"
	vendoredDirectoryNameConstant    = "node_modules"
	scanStartedLogMessageConstant    = "policy scan starting"
	scanCompletedLogMessageConstant  = "policy scan completed"
	rootPathLogFieldNameConstant     = "root_path"
	fileCountLogFieldNameConstant    = "file_count"
	findingCountLogFieldNameConstant = "finding_count"
)

// treeSnapshot captures the traversal state shared by every rule evaluation.
type treeSnapshot struct {
	rootPath  string
	filePaths []string
}

func (snapshot treeSnapshot) readFile(relativePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(snapshot.rootPath, filepath.FromSlash(relativePath)))
}

// Scanner evaluates the policy catalog's rules against a file tree.
type Scanner struct {
	catalog policy.Catalog
	logger  *zap.Logger
	rules   []rule
}

// NewScanner validates the catalog and constructs a Scanner.
func NewScanner(catalog policy.Catalog, logger *zap.Logger) (*Scanner, error) {
	if validationError := catalog.Validate(); validationError != nil {
		return nil, validationError
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	scanner := &Scanner{catalog: catalog, logger: logger}
	scanner.rules = buildRuleTable(scanner)
	return scanner, nil
}

// Scan walks the tree rooted at rootPath and returns every finding produced by
// the rule table. Each call re-derives findings from scratch.
func (scanner *Scanner) Scan(rootPath string) (Report, error) {
	scanner.logger.Debug(scanStartedLogMessageConstant, zap.String(rootPathLogFieldNameConstant, rootPath))

	snapshot, snapshotError := collectTreeSnapshot(rootPath)
	if snapshotError != nil {
		return Report{}, snapshotError
	}

	var findings []Finding
	for _, tableRule := range scanner.rules {
		ruleFindings, evaluationError := tableRule.evaluate(snapshot)
		if evaluationError != nil {
			return Report{}, evaluationError
		}
		findings = append(findings, ruleFindings...)
	}

	scanner.logger.Debug(
		scanCompletedLogMessageConstant,
		zap.String(rootPathLogFieldNameConstant, rootPath),
		zap.Int(fileCountLogFieldNameConstant, len(snapshot.filePaths)),
		zap.Int(findingCountLogFieldNameConstant, len(findings)),
	)

	return Report{Findings: findings}, nil
}

// RuleTitles returns the display title of every rule in evaluation order.
func (scanner *Scanner) RuleTitles() []RuleTitle {
	ruleTitles := make([]RuleTitle, 0, len(scanner.rules))
	for _, tableRule := range scanner.rules {
		ruleTitles = append(ruleTitles, RuleTitle{Identifier: tableRule.identifier, Title: tableRule.title})
	}
	return ruleTitles
}

// RuleTitle pairs a rule identifier with its operator-facing title.
type RuleTitle struct {
	Identifier RuleID
	Title      string
}

func collectTreeSnapshot(rootPath string) (treeSnapshot, error) {
	var filePaths []string

	walkError := filepath.WalkDir(rootPath, func(currentPath string, directoryEntry fs.DirEntry, entryError error) error {
		if entryError != nil {
			return entryError
		}

		if directoryEntry.IsDir() {
			directoryName := directoryEntry.Name()
			if directoryName == gitMetadataDirectoryNameConstant || directoryName == vendoredDirectoryNameConstant {
				return fs.SkipDir
			}
			return nil
		}

		relativePath, relativeError := filepath.Rel(rootPath, currentPath)
		if relativeError != nil {
			return relativeError
		}
		filePaths = append(filePaths, filepath.ToSlash(relativePath))
		return nil
	})
	if walkError != nil {
		return treeSnapshot{}, walkError
	}

	sort.Strings(filePaths)
	return treeSnapshot{rootPath: rootPath, filePaths: filePaths}, nil
}
