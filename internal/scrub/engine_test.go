package scrub_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forkguard/forkguard/internal/policy"
	"github.com/forkguard/forkguard/internal/scan"
	"github.com/forkguard/forkguard/internal/scrub"
)

const (
	testTriggeringCommitConstant = "1234abc"
	testBannedPrefixConstant     = "extensions/telemetry"
	testSurvivingPathConstant    = "extensions/search/index.ts"
	testDriftedManifestConstant  = `{"name": "gateway", "pnpm": {"onlyBuiltDependencies": ["esbuild", "left-pad"]}}`
)

type recordingTrackingRemover struct {
	removedPaths []string
}

func (remover *recordingTrackingRemover) RemovePathFromIndex(executionContext context.Context, repositoryPath string, trackedPath string) error {
	remover.removedPaths = append(remover.removedPaths, trackedPath)
	return nil
}

func newTestEngine(testInstance *testing.T, remover scrub.TrackingRemover) *scrub.Engine {
	testInstance.Helper()
	engine, creationError := scrub.NewEngine(scrub.OSFileSystem{}, remover, nil)
	require.NoError(testInstance, creationError)
	return engine
}

func writeWorktree(testInstance *testing.T, relativePaths ...string) string {
	testInstance.Helper()
	rootPath := testInstance.TempDir()
	for _, relativePath := range relativePaths {
		absolutePath := filepath.Join(rootPath, filepath.FromSlash(relativePath))
		require.NoError(testInstance, os.MkdirAll(filepath.Dir(absolutePath), 0o755))
		require.NoError(testInstance, os.WriteFile(absolutePath, []byte("content"), 0o644))
	}
	return rootPath
}

func TestNewEngineRequiresFileSystem(testInstance *testing.T) {
	engine, creationError := scrub.NewEngine(nil, nil, nil)
	require.Nil(testInstance, engine)
	require.ErrorIs(testInstance, creationError, scrub.ErrFileSystemNotConfigured)
}

func TestScrubRemovesBannedPathsAndRecordsActions(testInstance *testing.T) {
	rootPath := writeWorktree(
		testInstance,
		testBannedPrefixConstant+"/index.ts",
		testBannedPrefixConstant+"/nested/beacon.ts",
		testSurvivingPathConstant,
	)
	remover := &recordingTrackingRemover{}
	engine := newTestEngine(testInstance, remover)

	actions, scrubError := engine.Scrub(context.Background(), rootPath, []string{testBannedPrefixConstant}, testTriggeringCommitConstant)
	require.NoError(testInstance, scrubError)
	require.Equal(
		testInstance,
		[]scrub.Action{{Kind: scrub.ActionKindPathRemoval, Path: testBannedPrefixConstant, TriggeringCommit: testTriggeringCommitConstant}},
		actions,
	)
	require.Equal(testInstance, []string{testBannedPrefixConstant}, remover.removedPaths)

	_, bannedStatError := os.Stat(filepath.Join(rootPath, filepath.FromSlash(testBannedPrefixConstant)))
	require.True(testInstance, os.IsNotExist(bannedStatError))

	_, survivorStatError := os.Stat(filepath.Join(rootPath, filepath.FromSlash(testSurvivingPathConstant)))
	require.NoError(testInstance, survivorStatError)
}

func TestScrubSilentlySkipsAbsentPaths(testInstance *testing.T) {
	rootPath := writeWorktree(testInstance, testSurvivingPathConstant)
	engine := newTestEngine(testInstance, nil)

	actions, scrubError := engine.Scrub(context.Background(), rootPath, []string{testBannedPrefixConstant}, testTriggeringCommitConstant)
	require.NoError(testInstance, scrubError)
	require.Empty(testInstance, actions)
}

func TestScrubIsIdempotent(testInstance *testing.T) {
	rootPath := writeWorktree(testInstance, testBannedPrefixConstant+"/index.ts")
	engine := newTestEngine(testInstance, nil)

	firstActions, firstError := engine.Scrub(context.Background(), rootPath, []string{testBannedPrefixConstant}, testTriggeringCommitConstant)
	require.NoError(testInstance, firstError)
	require.Len(testInstance, firstActions, 1)

	secondActions, secondError := engine.Scrub(context.Background(), rootPath, []string{testBannedPrefixConstant}, testTriggeringCommitConstant)
	require.NoError(testInstance, secondError)
	require.Empty(testInstance, secondActions)
}

func TestScrubProcessesPrefixesInSortedOrder(testInstance *testing.T) {
	rootPath := writeWorktree(
		testInstance,
		"packages/native-messaging-host/main.c",
		"extensions/telemetry/index.ts",
	)
	engine := newTestEngine(testInstance, nil)

	actions, scrubError := engine.Scrub(
		context.Background(),
		rootPath,
		[]string{"packages/native-messaging-host", "extensions/telemetry"},
		testTriggeringCommitConstant,
	)
	require.NoError(testInstance, scrubError)
	require.Len(testInstance, actions, 2)
	require.Equal(testInstance, "extensions/telemetry", actions[0].Path)
	require.Equal(testInstance, "packages/native-messaging-host", actions[1].Path)
}

func TestScrubbedTreePassesBannedDirectoryAudit(testInstance *testing.T) {
	catalog := policy.DefaultCatalog()
	rootPath := writeWorktree(
		testInstance,
		catalog.BannedPathPrefixes[0]+"/index.ts",
		testSurvivingPathConstant,
	)
	engine := newTestEngine(testInstance, nil)

	actions, scrubError := engine.Scrub(context.Background(), rootPath, catalog.BannedPathPrefixes, testTriggeringCommitConstant)
	require.NoError(testInstance, scrubError)
	require.Len(testInstance, actions, 1)

	scanner, scannerError := scan.NewScanner(catalog, nil)
	require.NoError(testInstance, scannerError)

	report, auditError := scanner.Scan(rootPath)
	require.NoError(testInstance, auditError)
	require.Empty(testInstance, report.FindingsForRule(scan.RuleBannedDirectory))
}

func TestResetBuildAllowlistRemovesUnexpectedEntries(testInstance *testing.T) {
	rootPath := testInstance.TempDir()
	manifestPath := filepath.Join(rootPath, "package.json")
	require.NoError(testInstance, os.WriteFile(manifestPath, []byte(testDriftedManifestConstant), 0o644))
	engine := newTestEngine(testInstance, nil)

	actions, resetError := engine.ResetBuildAllowlist(rootPath, []string{"esbuild"}, testTriggeringCommitConstant)
	require.NoError(testInstance, resetError)
	require.Equal(
		testInstance,
		[]scrub.Action{{Kind: scrub.ActionKindAllowlistReset, Path: "left-pad", TriggeringCommit: testTriggeringCommitConstant}},
		actions,
	)

	rewrittenContent, readError := os.ReadFile(manifestPath)
	require.NoError(testInstance, readError)
	var rewrittenManifest struct {
		Name string `json:"name"`
		Pnpm struct {
			OnlyBuiltDependencies []string `json:"onlyBuiltDependencies"`
		} `json:"pnpm"`
	}
	require.NoError(testInstance, json.Unmarshal(rewrittenContent, &rewrittenManifest))
	require.Equal(testInstance, "gateway", rewrittenManifest.Name)
	require.Equal(testInstance, []string{"esbuild"}, rewrittenManifest.Pnpm.OnlyBuiltDependencies)

	secondActions, secondError := engine.ResetBuildAllowlist(rootPath, []string{"esbuild"}, testTriggeringCommitConstant)
	require.NoError(testInstance, secondError)
	require.Empty(testInstance, secondActions)
}

func TestResetBuildAllowlistLeavesManifestlessTreesUntouched(testInstance *testing.T) {
	rootPath := writeWorktree(testInstance, testSurvivingPathConstant)
	engine := newTestEngine(testInstance, nil)

	actions, resetError := engine.ResetBuildAllowlist(rootPath, []string{"esbuild"}, testTriggeringCommitConstant)
	require.NoError(testInstance, resetError)
	require.Empty(testInstance, actions)
}

func TestRemediatedTreePassesBuildAllowlistAudit(testInstance *testing.T) {
	catalog := policy.DefaultCatalog()
	rootPath := testInstance.TempDir()
	manifestPath := filepath.Join(rootPath, "package.json")
	require.NoError(testInstance, os.WriteFile(manifestPath, []byte(testDriftedManifestConstant), 0o644))
	engine := newTestEngine(testInstance, nil)

	scanner, scannerError := scan.NewScanner(catalog, nil)
	require.NoError(testInstance, scannerError)

	driftedReport, driftedAuditError := scanner.Scan(rootPath)
	require.NoError(testInstance, driftedAuditError)
	require.NotEmpty(testInstance, driftedReport.FindingsForRule(scan.RuleBuildAllowlistDrift))

	actions, resetError := engine.ResetBuildAllowlist(rootPath, catalog.ExpectedBuildAllowlist, testTriggeringCommitConstant)
	require.NoError(testInstance, resetError)
	require.NotEmpty(testInstance, actions)

	remediatedReport, remediatedAuditError := scanner.Scan(rootPath)
	require.NoError(testInstance, remediatedAuditError)
	require.Empty(testInstance, remediatedReport.FindingsForRule(scan.RuleBuildAllowlistDrift))
}
