package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/forkguard/forkguard/internal/execshell"
)

const (
	requiredValueMessageConstant            = "value must not be empty"
	executorNotConfiguredMessageConstant    = "git executor not configured"
	noCommonAncestorMessageConstant         = "histories share no common ancestor"
	transplantConflictTemplateConstant      = "transplant of %s stopped on a content conflict: %s"
	gitRemoteSubcommandConstant             = "remote"
	gitRemoteGetURLSubcommandConstant       = "get-url"
	gitRemoteAddSubcommandConstant          = "add"
	gitFetchSubcommandConstant              = "fetch"
	gitMergeBaseSubcommandConstant          = "merge-base"
	gitLogSubcommandConstant                = "log"
	gitLogPrettyFlagConstant                = "--pretty=format:%H%x09%s"
	gitLogMaxCountFlagTemplateConstant      = "--max-count=%d"
	gitCherryPickSubcommandConstant         = "cherry-pick"
	gitNoCommitFlagConstant                 = "--no-commit"
	gitCherryPickRecordOriginFlagConstant   = "-x"
	gitCommitSubcommandConstant             = "commit"
	gitReuseMessageFlagTemplateConstant     = "--reuse-message=%s"
	gitAddSubcommandConstant                = "add"
	gitAllFlagConstant                      = "-A"
	gitRMSubcommandConstant                 = "rm"
	gitRecursiveFlagConstant                = "-r"
	gitQuietFlagConstant                    = "-q"
	gitCachedFlagConstant                   = "--cached"
	gitIgnoreUnmatchFlagConstant            = "--ignore-unmatch"
	gitPathspecSeparatorConstant            = "--"
	gitStatusSubcommandConstant             = "status"
	gitStatusPorcelainFlagConstant          = "--porcelain"
	commitListFieldSeparatorConstant        = "\t"
	commitListExpectedFieldCountConstant    = 2
	mergeBaseUnrelatedHistoriesExitCode     = 1
	cherryPickConflictExitCode              = 1
	remoteRegistrationErrorTemplateConstant = "unable to register remote %s: %w"
	fetchErrorTemplateConstant              = "unable to fetch %s from %s: %w"
)

// Sentinel errors surfaced by RepositoryManager.
var (
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
	ErrNoCommonAncestor      = errors.New(noCommonAncestorMessageConstant)
)

// TransplantConflictError indicates a cherry-pick stopped on conflicting content.
type TransplantConflictError struct {
	Target  string
	Details string
}

// Error describes the conflicted transplant.
func (conflictError TransplantConflictError) Error() string {
	return fmt.Sprintf(transplantConflictTemplateConstant, conflictError.Target, conflictError.Details)
}

// GitExecutor narrows the execshell surface used by the repository manager.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// CommitSummary captures one history entry returned by ListCommits.
type CommitSummary struct {
	Hash    string
	Subject string
}

// RepositoryManager performs structured git operations through a GitExecutor.
type RepositoryManager struct {
	executor GitExecutor
}

// NewRepositoryManager validates the executor and constructs a RepositoryManager.
func NewRepositoryManager(executor GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// HasRemote reports whether the named remote is configured for the repository.
func (manager *RepositoryManager) HasRemote(executionContext context.Context, repositoryPath string, remoteName string) (bool, error) {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRemoteSubcommandConstant, gitRemoteGetURLSubcommandConstant, remoteName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		failure := execshell.CommandFailedError{}
		if errors.As(executionError, &failure) {
			return false, nil
		}
		return false, executionError
	}
	return true, nil
}

// AddRemote registers the named remote pointing at the supplied URL.
func (manager *RepositoryManager) AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRemoteSubcommandConstant, gitRemoteAddSubcommandConstant, remoteName, remoteURL},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(remoteRegistrationErrorTemplateConstant, remoteName, executionError)
	}
	return nil
}

// Fetch retrieves the latest history for the named remote branch without mutating local branches.
func (manager *RepositoryManager) Fetch(executionContext context.Context, repositoryPath string, remoteName string, branchName string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitFetchSubcommandConstant, remoteName, branchName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(fetchErrorTemplateConstant, branchName, remoteName, executionError)
	}
	return nil
}

// MergeBase resolves the most recent common ancestor of the two references.
// ErrNoCommonAncestor is returned when the histories are unrelated.
func (manager *RepositoryManager) MergeBase(executionContext context.Context, repositoryPath string, firstReference string, secondReference string) (string, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitMergeBaseSubcommandConstant, firstReference, secondReference},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		failure := execshell.CommandFailedError{}
		if errors.As(executionError, &failure) && failure.Result.ExitCode == mergeBaseUnrelatedHistoriesExitCode {
			return "", ErrNoCommonAncestor
		}
		return "", executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// ListCommits returns the commits reachable from the range expression, newest first.
// A non-positive limit lists the full range.
func (manager *RepositoryManager) ListCommits(executionContext context.Context, repositoryPath string, rangeExpression string, limit int) ([]CommitSummary, error) {
	arguments := []string{gitLogSubcommandConstant, gitLogPrettyFlagConstant}
	if limit > 0 {
		arguments = append(arguments, fmt.Sprintf(gitLogMaxCountFlagTemplateConstant, limit))
	}
	arguments = append(arguments, rangeExpression)

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return nil, executionError
	}

	var commits []CommitSummary
	for _, outputLine := range strings.Split(executionResult.StandardOutput, "\n") {
		trimmedLine := strings.TrimSpace(outputLine)
		if len(trimmedLine) == 0 {
			continue
		}
		lineFields := strings.SplitN(trimmedLine, commitListFieldSeparatorConstant, commitListExpectedFieldCountConstant)
		commitSummary := CommitSummary{Hash: lineFields[0]}
		if len(lineFields) == commitListExpectedFieldCountConstant {
			commitSummary.Subject = lineFields[1]
		}
		commits = append(commits, commitSummary)
	}
	return commits, nil
}

// TransplantWithoutCommit applies the target changeset(s) to the working tree
// without finalizing a commit. A content conflict makes cherry-pick exit with
// code 1 and surfaces as TransplantConflictError; fatal failures such as an
// unknown revision exit with a different code and pass through unchanged.
func (manager *RepositoryManager) TransplantWithoutCommit(executionContext context.Context, repositoryPath string, target string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCherryPickSubcommandConstant, gitNoCommitFlagConstant, gitCherryPickRecordOriginFlagConstant, target},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		failure := execshell.CommandFailedError{}
		if errors.As(executionError, &failure) && failure.Result.ExitCode == cherryPickConflictExitCode {
			return TransplantConflictError{Target: target, Details: strings.TrimSpace(failure.Result.StandardError)}
		}
		return executionError
	}
	return nil
}

// StageAllChanges stages every pending change including deletions.
func (manager *RepositoryManager) StageAllChanges(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitAddSubcommandConstant, gitAllFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	return executionError
}

// RemovePathFromIndex drops the path from version-control tracking while
// leaving the working tree untouched. Unmatched paths are not an error.
func (manager *RepositoryManager) RemovePathFromIndex(executionContext context.Context, repositoryPath string, trackedPath string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{
			gitRMSubcommandConstant,
			gitRecursiveFlagConstant,
			gitQuietFlagConstant,
			gitCachedFlagConstant,
			gitIgnoreUnmatchFlagConstant,
			gitPathspecSeparatorConstant,
			trackedPath,
		},
		WorkingDirectory: repositoryPath,
	})
	return executionError
}

// CommitReusingMessage finalizes staged changes reusing the metadata of the supplied commit.
func (manager *RepositoryManager) CommitReusingMessage(executionContext context.Context, repositoryPath string, sourceCommit string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCommitSubcommandConstant, fmt.Sprintf(gitReuseMessageFlagTemplateConstant, sourceCommit)},
		WorkingDirectory: repositoryPath,
	})
	return executionError
}

// CheckCleanWorktree reports whether the working tree has no pending changes.
func (manager *RepositoryManager) CheckCleanWorktree(executionContext context.Context, repositoryPath string) (bool, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return false, executionError
	}
	return len(strings.TrimSpace(executionResult.StandardOutput)) == 0, nil
}
