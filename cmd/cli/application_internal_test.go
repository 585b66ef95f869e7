package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	scanSubcommandNameConstant = "scan"
	syncSubcommandNameConstant = "sync"
)

func TestNewApplicationRegistersSubcommands(testInstance *testing.T) {
	application := NewApplication()

	registeredNames := map[string]bool{}
	for _, registeredCommand := range application.rootCommand.Commands() {
		registeredNames[registeredCommand.Name()] = true
	}

	require.True(testInstance, registeredNames[scanSubcommandNameConstant])
	require.True(testInstance, registeredNames[syncSubcommandNameConstant])
}

func TestScanSubcommandReportsCleanTree(testInstance *testing.T) {
	cleanTreeRoot := testInstance.TempDir()
	require.NoError(testInstance, os.WriteFile(filepath.Join(cleanTreeRoot, "package.json"), []byte(`{"name":"fork"}`), 0o644))

	application := NewApplication()
	outputBuffer := &bytes.Buffer{}
	application.rootCommand.SetOut(outputBuffer)
	application.rootCommand.SetErr(&bytes.Buffer{})
	application.rootCommand.SetArgs([]string{scanSubcommandNameConstant, cleanTreeRoot})

	require.NoError(testInstance, application.Execute())
	require.Contains(testInstance, outputBuffer.String(), "Summary: clean")
}

func TestScanSubcommandFailsOnBannedDirectory(testInstance *testing.T) {
	violatingTreeRoot := testInstance.TempDir()
	bannedDirectory := filepath.Join(violatingTreeRoot, "extensions", "telemetry")
	require.NoError(testInstance, os.MkdirAll(bannedDirectory, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(bannedDirectory, "index.js"), []byte("module.exports = {}\n"), 0o644))

	application := NewApplication()
	outputBuffer := &bytes.Buffer{}
	application.rootCommand.SetOut(outputBuffer)
	application.rootCommand.SetErr(&bytes.Buffer{})
	application.rootCommand.SetArgs([]string{scanSubcommandNameConstant, violatingTreeRoot})

	require.Error(testInstance, application.Execute())
	require.Contains(testInstance, outputBuffer.String(), "[FAIL]")
}

func TestInitializeConfigurationAppliesEmbeddedDefaults(testInstance *testing.T) {
	application := NewApplication()

	require.NoError(testInstance, application.initializeConfiguration(application.rootCommand))
	require.Equal(testInstance, "upstream", application.configuration.Tools.Sync.RemoteName)
	require.Equal(testInstance, "main", application.configuration.Tools.Sync.BranchName)
	require.Equal(testInstance, 20, application.configuration.Tools.Sync.PreviewCount)
	require.NotEmpty(testInstance, application.resolvedCatalog.BannedPathPrefixes)
}
