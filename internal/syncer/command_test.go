package syncer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forkguard/forkguard/internal/syncer"
)

func TestCommandBuilderBuild(testInstance *testing.T) {
	builder := syncer.CommandBuilder{}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	require.Equal(testInstance, "sync", command.Name())
	require.NotNil(testInstance, command.Flags().Lookup("repository"))
	require.NotNil(testInstance, command.Flags().Lookup("dry-run"))
}

func TestDefaultConfigurationValuesCoverEveryKey(testInstance *testing.T) {
	defaults := syncer.DefaultConfigurationValues("tools.sync")

	require.Equal(testInstance, "upstream", defaults["tools.sync.remote"])
	require.Equal(testInstance, "main", defaults["tools.sync.branch"])
	require.Equal(testInstance, 20, defaults["tools.sync.preview_count"])
	require.NotEmpty(testInstance, defaults["tools.sync.url"])
}
