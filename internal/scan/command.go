package scan

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forkguard/forkguard/internal/policy"
	"github.com/forkguard/forkguard/internal/utils"
)

const (
	commandNameConstant                   = "scan [path]"
	commandShortDescriptionConstant       = "Audit the tree against the policy catalog"
	commandLongDescriptionConstant        = "scan re-validates the whole tree against the policy catalog and reports every finding grouped by rule. The command exits non-zero when any finding is produced."
	catalogFlagNameConstant               = "catalog"
	catalogFlagUsageConstant              = "Optional path to a YAML policy catalog overriding the compiled-in catalog."
	defaultScanRootConstant               = "."
	policyViolationsMessageConstant       = "policy violations detected; review the findings above"
	configurationFileLogMessageConstant   = "configuration file in effect"
	configurationFileLogFieldNameConstant = "configuration_file"
)

// LoggerProvider supplies a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CatalogProvider supplies the policy catalog for command execution.
type CatalogProvider func() policy.Catalog

// CommandBuilder assembles the scan cobra command with configurable dependencies.
type CommandBuilder struct {
	LoggerProvider  LoggerProvider
	CatalogProvider CatalogProvider
}

// Build constructs the cobra command for standalone policy audits.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandNameConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(1),
		RunE:  builder.run,
	}

	command.Flags().String(catalogFlagNameConstant, "", catalogFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	if configurationFilePath, hasConfigurationFile := utils.NewCommandContextAccessor().ConfigurationFilePath(command.Context()); hasConfigurationFile {
		logger.Debug(configurationFileLogMessageConstant, zap.String(configurationFileLogFieldNameConstant, configurationFilePath))
	}

	scanRoot := defaultScanRootConstant
	if len(arguments) > 0 {
		scanRoot = arguments[0]
	}

	catalog, catalogError := builder.resolveCatalog(command)
	if catalogError != nil {
		return catalogError
	}

	scanner, scannerError := NewScanner(catalog, logger)
	if scannerError != nil {
		return scannerError
	}

	report, scanError := scanner.Scan(scanRoot)
	if scanError != nil {
		return scanError
	}

	renderer := ReportRenderer{}
	if renderError := renderer.Render(command.OutOrStdout(), scanner.RuleTitles(), report); renderError != nil {
		return renderError
	}

	if !report.Clean() {
		return errors.New(policyViolationsMessageConstant)
	}
	return nil
}

func (builder *CommandBuilder) resolveCatalog(command *cobra.Command) (policy.Catalog, error) {
	catalogFilePath, _ := command.Flags().GetString(catalogFlagNameConstant)
	if len(catalogFilePath) > 0 {
		return policy.LoadCatalog(catalogFilePath)
	}
	if builder.CatalogProvider != nil {
		return builder.CatalogProvider(), nil
	}
	return policy.DefaultCatalog(), nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
