package gitrepo_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forkguard/forkguard/internal/execshell"
	"github.com/forkguard/forkguard/internal/gitrepo"
)

const (
	testRepositoryPathConstant    = "/tmp/fork"
	testUpstreamRemoteConstant    = "upstream"
	testUpstreamURLConstant       = "https://github.com/example/gateway.git"
	testMergeBaseOutputConstant   = "aaaabbbbccccddddeeeeffff0000111122223333\n"
	testConflictStandardErrorText = "error: could not apply 1234abc... add extension"
)

type scriptedGitExecutor struct {
	results          []execshell.ExecutionResult
	errors           []error
	recordedCommands []execshell.CommandDetails
}

func (executor *scriptedGitExecutor) ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.recordedCommands = append(executor.recordedCommands, details)
	invocationIndex := len(executor.recordedCommands) - 1
	var executionError error
	if invocationIndex < len(executor.errors) {
		executionError = executor.errors[invocationIndex]
	}
	var executionResult execshell.ExecutionResult
	if invocationIndex < len(executor.results) {
		executionResult = executor.results[invocationIndex]
	}
	return executionResult, executionError
}

func commandFailure(exitCode int, standardError string) error {
	return execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGit},
		Result:  execshell.ExecutionResult{ExitCode: exitCode, StandardError: standardError},
	}
}

func TestNewRepositoryManagerRequiresExecutor(testInstance *testing.T) {
	manager, creationError := gitrepo.NewRepositoryManager(nil)
	require.Nil(testInstance, manager)
	require.ErrorIs(testInstance, creationError, gitrepo.ErrExecutorNotConfigured)
}

func TestHasRemoteBehavior(testInstance *testing.T) {
	testCases := []struct {
		name           string
		executionError error
		expectedResult bool
	}{
		{name: "remote_configured", executionError: nil, expectedResult: true},
		{name: "remote_missing", executionError: commandFailure(2, "error: No such remote"), expectedResult: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{errors: []error{testCase.executionError}}
			manager, creationError := gitrepo.NewRepositoryManager(executor)
			require.NoError(testInstance, creationError)

			hasRemote, lookupError := manager.HasRemote(context.Background(), testRepositoryPathConstant, testUpstreamRemoteConstant)
			require.NoError(testInstance, lookupError)
			require.Equal(testInstance, testCase.expectedResult, hasRemote)
			require.Equal(testInstance, []string{"remote", "get-url", testUpstreamRemoteConstant}, executor.recordedCommands[0].Arguments)
		})
	}
}

func TestMergeBaseDetectsUnrelatedHistories(testInstance *testing.T) {
	testCases := []struct {
		name           string
		result         execshell.ExecutionResult
		executionError error
		expectedBase   string
		expectedError  error
	}{
		{
			name:         "shared_ancestor",
			result:       execshell.ExecutionResult{StandardOutput: testMergeBaseOutputConstant},
			expectedBase: strings.TrimSpace(testMergeBaseOutputConstant),
		},
		{
			name:           "unrelated_histories",
			executionError: commandFailure(1, ""),
			expectedError:  gitrepo.ErrNoCommonAncestor,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{
				results: []execshell.ExecutionResult{testCase.result},
				errors:  []error{testCase.executionError},
			}
			manager, creationError := gitrepo.NewRepositoryManager(executor)
			require.NoError(testInstance, creationError)

			mergeBase, mergeBaseError := manager.MergeBase(context.Background(), testRepositoryPathConstant, "HEAD", "upstream/main")
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, mergeBaseError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, mergeBaseError)
			require.Equal(testInstance, testCase.expectedBase, mergeBase)
		})
	}
}

func TestListCommitsParsesHistoryEntries(testInstance *testing.T) {
	executor := &scriptedGitExecutor{
		results: []execshell.ExecutionResult{{
			StandardOutput: "c3\tthird change\nc2\tsecond change\nc1\tfirst change\n",
		}},
	}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	commits, listError := manager.ListCommits(context.Background(), testRepositoryPathConstant, "base..upstream/main", 20)
	require.NoError(testInstance, listError)
	require.Len(testInstance, commits, 3)
	require.Equal(testInstance, gitrepo.CommitSummary{Hash: "c3", Subject: "third change"}, commits[0])
	require.Contains(testInstance, executor.recordedCommands[0].Arguments, "--max-count=20")
}

func TestTransplantWithoutCommitClassifiesFailures(testInstance *testing.T) {
	testCases := []struct {
		name           string
		executionError error
		expectConflict bool
	}{
		{
			name:           "content_conflict_exit_code_one",
			executionError: commandFailure(1, testConflictStandardErrorText),
			expectConflict: true,
		},
		{
			name:           "unknown_revision_exit_code_128",
			executionError: commandFailure(128, "fatal: bad revision '1234abc'"),
			expectConflict: false,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{errors: []error{testCase.executionError}}
			manager, creationError := gitrepo.NewRepositoryManager(executor)
			require.NoError(testInstance, creationError)

			transplantError := manager.TransplantWithoutCommit(context.Background(), testRepositoryPathConstant, "1234abc")
			require.Error(testInstance, transplantError)

			conflictError := gitrepo.TransplantConflictError{}
			if testCase.expectConflict {
				require.ErrorAs(testInstance, transplantError, &conflictError)
				require.Equal(testInstance, "1234abc", conflictError.Target)
				require.Contains(testInstance, conflictError.Details, "could not apply")
			} else {
				require.False(testInstance, errors.As(transplantError, &conflictError))
				failure := execshell.CommandFailedError{}
				require.ErrorAs(testInstance, transplantError, &failure)
			}
		})
	}
}

func TestRemovePathFromIndexUsesIgnoreUnmatch(testInstance *testing.T) {
	executor := &scriptedGitExecutor{}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	removalError := manager.RemovePathFromIndex(context.Background(), testRepositoryPathConstant, "extensions/telemetry")
	require.NoError(testInstance, removalError)
	require.Equal(
		testInstance,
		[]string{"rm", "-r", "-q", "--cached", "--ignore-unmatch", "--", "extensions/telemetry"},
		executor.recordedCommands[0].Arguments,
	)
}

func TestCheckCleanWorktree(testInstance *testing.T) {
	testCases := []struct {
		name           string
		statusOutput   string
		expectedResult bool
	}{
		{name: "clean", statusOutput: "\n", expectedResult: true},
		{name: "dirty", statusOutput: " M package.json\n", expectedResult: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{results: []execshell.ExecutionResult{{StandardOutput: testCase.statusOutput}}}
			manager, creationError := gitrepo.NewRepositoryManager(executor)
			require.NoError(testInstance, creationError)

			cleanWorktree, statusError := manager.CheckCleanWorktree(context.Background(), testRepositoryPathConstant)
			require.NoError(testInstance, statusError)
			require.Equal(testInstance, testCase.expectedResult, cleanWorktree)
		})
	}
}

func TestParseRemoteURLSupportsHTTPSAndSSH(testInstance *testing.T) {
	testCases := []struct {
		name          string
		remote        string
		expectedOwner string
		expectError   bool
	}{
		{name: "https", remote: testUpstreamURLConstant, expectedOwner: "example"},
		{name: "ssh", remote: "git@github.com:example/gateway.git", expectedOwner: "example"},
		{name: "invalid", remote: "ftp://example.com/gateway", expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			parsedRemote, parseError := gitrepo.ParseRemoteURL(testCase.remote)
			if testCase.expectError {
				require.Error(testInstance, parseError)
				return
			}
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expectedOwner, parsedRemote.Owner)
			require.Equal(testInstance, "gateway", parsedRemote.Repository)
		})
	}
}
