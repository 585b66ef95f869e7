package syncer

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forkguard/forkguard/internal/execshell"
	"github.com/forkguard/forkguard/internal/gitrepo"
	"github.com/forkguard/forkguard/internal/policy"
	"github.com/forkguard/forkguard/internal/scan"
	"github.com/forkguard/forkguard/internal/scrub"
	"github.com/forkguard/forkguard/internal/ui"
	"github.com/forkguard/forkguard/internal/utils"
)

const (
	commandNameConstant             = "sync [commit|first..last]"
	commandShortDescriptionConstant = "Transplant upstream commits through the policy pipeline"
	commandLongDescriptionConstant  = "sync fetches the configured upstream branch and either lists transplant candidates or transplants the requested commit or inclusive range, scrubbing banned paths and re-validating the tree before the result is finalized."
	repositoryFlagNameConstant      = "repository"
	repositoryFlagUsageConstant     = "Path to the fork repository."
	dryRunFlagNameConstant          = "dry-run"
	dryRunFlagUsageConstant         = "Preview the sync without mutating the repository."
	defaultRepositoryPathConstant   = "."
	syncStoppedMessageConstant      = "sync did not complete; see the messages above"

	configurationFileLogMessageConstant   = "configuration file in effect"
	configurationFileLogFieldNameConstant = "configuration_file"
)

// LoggerProvider supplies a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the sync configuration for command execution.
type ConfigurationProvider func() Configuration

// CatalogProvider supplies the policy catalog for command execution.
type CatalogProvider func() policy.Catalog

// CommandBuilder assembles the sync cobra command with configurable dependencies.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	CatalogProvider       CatalogProvider
}

// Build constructs the cobra command driving the synchronization pipeline.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandNameConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(1),
		RunE:  builder.run,
	}

	command.Flags().String(repositoryFlagNameConstant, defaultRepositoryPathConstant, repositoryFlagUsageConstant)
	command.Flags().Bool(dryRunFlagNameConstant, false, dryRunFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	if configurationFilePath, hasConfigurationFile := utils.NewCommandContextAccessor().ConfigurationFilePath(command.Context()); hasConfigurationFile {
		logger.Debug(configurationFileLogMessageConstant, zap.String(configurationFileLogFieldNameConstant, configurationFilePath))
	}

	executor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), ui.NewConsoleCommandEventLogger(logger))
	if executorError != nil {
		return executorError
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(executor)
	if managerError != nil {
		return managerError
	}

	scrubEngine, engineError := scrub.NewEngine(scrub.OSFileSystem{}, repositoryManager, logger)
	if engineError != nil {
		return engineError
	}

	catalog := builder.resolveCatalog()
	verifier, scannerError := scan.NewScanner(catalog, logger)
	if scannerError != nil {
		return scannerError
	}

	service, serviceError := NewService(
		ServiceDependencies{
			Logger:       logger,
			GitManager:   repositoryManager,
			Scrubber:     scrubEngine,
			Verifier:     verifier,
			OutputWriter: command.OutOrStdout(),
			ErrorWriter:  command.ErrOrStderr(),
		},
		builder.resolveConfiguration(),
		catalog,
	)
	if serviceError != nil {
		return serviceError
	}

	repositoryPath, _ := command.Flags().GetString(repositoryFlagNameConstant)
	dryRun, _ := command.Flags().GetBool(dryRunFlagNameConstant)
	target := ""
	if len(arguments) > 0 {
		target = arguments[0]
	}

	result, runError := service.Run(command.Context(), Options{
		RepositoryPath: repositoryPath,
		Target:         target,
		DryRun:         dryRun,
	})
	if runError != nil {
		return runError
	}
	if result.State == StateConflict || result.State == StateAborted {
		return errors.New(syncStoppedMessageConstant)
	}
	return nil
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

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	if builder.ConfigurationProvider == nil {
		return DefaultConfiguration()
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveCatalog() policy.Catalog {
	if builder.CatalogProvider == nil {
		return policy.DefaultCatalog()
	}
	return builder.CatalogProvider()
}
