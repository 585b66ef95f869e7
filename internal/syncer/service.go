package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/forkguard/forkguard/internal/gitrepo"
	"github.com/forkguard/forkguard/internal/policy"
	"github.com/forkguard/forkguard/internal/scan"
	"github.com/forkguard/forkguard/internal/scrub"
)

const (
	gitManagerMissingMessageConstant = "git manager not configured"
	scrubberMissingMessageConstant   = "scrub engine not configured"
	dirtyWorktreeMessageConstant     = "working tree must be clean before a transplant"
	emptyTargetMessageConstant       = "transplant target must not be empty"
	invalidRangeMessageConstant      = "transplant range must have the form <first>..<last>"
	noCommonAncestorTemplateConstant = "local history shares no common ancestor with %s/%s; the fork cannot sync from this upstream"

	rangeDelimiterConstant          = ".."
	inclusiveRangeTemplateConstant  = "%s^..%s"
	remoteReferenceTemplateConstant = "%s/%s"
	listRangeTemplateConstant       = "%s..%s"

	ensureRemoteStatusTemplateConstant     = "Ensuring upstream remote %q is configured\n"
	remoteRegisteredStatusTemplateConstant = "Registered upstream remote %q -> %s\n"
	remotePresentStatusTemplateConstant    = "Upstream remote %q already configured\n"
	fetchStatusTemplateConstant            = "Fetching %s from %q\n"
	fetchCompletedStatusTemplateConstant   = "Fetched %s from %q\n"
	resolveBaseStatusTemplateConstant      = "Resolving common ancestor with %s\n"
	baseResolvedStatusTemplateConstant     = "Common ancestor: %s\n"
	candidateListHeaderTemplateConstant    = "Found %d candidate commit(s) between %s and %s (showing up to %d):\n"
	candidateLineTemplateConstant          = "  %s %s\n"
	candidateHintMessageConstant           = "Run 'forkguard sync <commit>' or 'forkguard sync <first>..<last>' to transplant.\n"
	noCandidatesMessageConstant            = "Fork is up to date with upstream; nothing to transplant.\n"
	dryRunStatusTemplateConstant           = "Dry run: would transplant %s\n"
	transplantStatusTemplateConstant       = "Transplanting %s\n"
	transplantAppliedStatusConstant        = "Transplant applied to the working tree\n"
	scrubStatusMessageConstant             = "Scrubbing banned paths from the working tree\n"
	scrubCompletedStatusTemplateConstant   = "Scrubbed %d banned path(s)\n"
	scrubCleanStatusMessageConstant        = "No banned paths introduced by this transplant\n"
	allowlistResetStatusTemplateConstant   = "Removed %d unexpected entry(s) from the build allowlist\n"
	finalizeStatusTemplateConstant         = "Finalizing transplant as a single commit (reusing message of %s)\n"
	finalizeCompletedStatusConstant        = "Transplant finalized\n"
	verifyStatusMessageConstant            = "Verifying tree against the policy catalog\n"
	verifyCleanStatusMessageConstant       = "Post-transplant verification: clean\n"
	verifyFindingsWarningMessageConstant   = "WARNING: policy findings remain after the transplant; review them before publishing.\n"
	verifySkippedWarningMessageConstant    = "WARNING: policy scanner unavailable; skipping post-transplant verification.\n"
	conflictAdviceMessageConstant          = "Transplant stopped on conflicts. Resolve them manually, then finish with 'git cherry-pick --continue' or abandon with 'git cherry-pick --abort'.\n"
	conflictErrorTemplateConstant          = "transplant conflict: %w"
	runStateLogFieldNameConstant           = "run_state"
	targetLogFieldNameConstant             = "target"
	runCompletedLogMessageConstant         = "sync run completed"
)

// Validation errors reported by NewService and Run.
var (
	ErrGitManagerNotConfigured = errors.New(gitManagerMissingMessageConstant)
	ErrScrubberNotConfigured   = errors.New(scrubberMissingMessageConstant)
	ErrDirtyWorktree           = errors.New(dirtyWorktreeMessageConstant)
	ErrEmptyTarget             = errors.New(emptyTargetMessageConstant)
	ErrInvalidRange            = errors.New(invalidRangeMessageConstant)
)

// RunState identifies the terminal state of one orchestrator invocation.
type RunState string

// Terminal states.
const (
	StateListed   RunState = "listed"
	StateDone     RunState = "done"
	StateConflict RunState = "conflict"
	StateAborted  RunState = "aborted"
)

// GitManager is the narrow version-control capability surface the orchestrator requires.
type GitManager interface {
	HasRemote(executionContext context.Context, repositoryPath string, remoteName string) (bool, error)
	AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error
	Fetch(executionContext context.Context, repositoryPath string, remoteName string, branchName string) error
	MergeBase(executionContext context.Context, repositoryPath string, firstReference string, secondReference string) (string, error)
	ListCommits(executionContext context.Context, repositoryPath string, rangeExpression string, limit int) ([]gitrepo.CommitSummary, error)
	TransplantWithoutCommit(executionContext context.Context, repositoryPath string, target string) error
	StageAllChanges(executionContext context.Context, repositoryPath string) error
	CommitReusingMessage(executionContext context.Context, repositoryPath string, sourceCommit string) error
	CheckCleanWorktree(executionContext context.Context, repositoryPath string) (bool, error)
}

// Scrubber applies the remediations folded into a transplant: banned path
// removal and build allowlist reset.
type Scrubber interface {
	Scrub(executionContext context.Context, repositoryPath string, bannedPrefixes []string, triggeringCommit string) ([]scrub.Action, error)
	ResetBuildAllowlist(repositoryPath string, expectedAllowlist []string, triggeringCommit string) ([]scrub.Action, error)
}

// PolicyVerifier re-validates the tree after a finalized transplant.
type PolicyVerifier interface {
	Scan(rootPath string) (scan.Report, error)
	RuleTitles() []scan.RuleTitle
}

// Options configures one orchestrator invocation.
type Options struct {
	RepositoryPath string
	Target         string
	DryRun         bool
}

// Result captures the observable outcome of one orchestrator invocation.
type Result struct {
	State               RunState
	BaseCommit          string
	Candidates          []gitrepo.CommitSummary
	ScrubActions        []scrub.Action
	VerificationReport  scan.Report
	VerificationSkipped bool
}

// ServiceDependencies describes the collaborators required by the orchestrator.
type ServiceDependencies struct {
	Logger       *zap.Logger
	GitManager   GitManager
	Scrubber     Scrubber
	Verifier     PolicyVerifier
	OutputWriter io.Writer
	ErrorWriter  io.Writer
}

// Service executes the selective synchronization state machine.
type Service struct {
	logger        *zap.Logger
	gitManager    GitManager
	scrubber      Scrubber
	verifier      PolicyVerifier
	outputWriter  io.Writer
	errorWriter   io.Writer
	configuration Configuration
	catalog       policy.Catalog
}

// NewService validates dependencies and constructs a Service. A nil verifier
// is tolerated: verification degrades to a warning instead of aborting a sync.
func NewService(dependencies ServiceDependencies, configuration Configuration, catalog policy.Catalog) (*Service, error) {
	if dependencies.GitManager == nil {
		return nil, ErrGitManagerNotConfigured
	}
	if dependencies.Scrubber == nil {
		return nil, ErrScrubberNotConfigured
	}
	if validationError := catalog.Validate(); validationError != nil {
		return nil, validationError
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	outputWriter := dependencies.OutputWriter
	if outputWriter == nil {
		outputWriter = io.Discard
	}
	errorWriter := dependencies.ErrorWriter
	if errorWriter == nil {
		errorWriter = io.Discard
	}

	return &Service{
		logger:        logger,
		gitManager:    dependencies.GitManager,
		scrubber:      dependencies.Scrubber,
		verifier:      dependencies.Verifier,
		outputWriter:  outputWriter,
		errorWriter:   errorWriter,
		configuration: configuration.sanitize(),
		catalog:       catalog,
	}, nil
}

// Run executes the state machine for one invocation. States run strictly
// sequentially; the working tree is the single shared mutable resource.
func (service *Service) Run(executionContext context.Context, options Options) (Result, error) {
	remoteReference := fmt.Sprintf(remoteReferenceTemplateConstant, service.configuration.RemoteName, service.configuration.BranchName)

	if ensureError := service.ensureRemote(executionContext, options.RepositoryPath); ensureError != nil {
		return Result{State: StateAborted}, ensureError
	}

	if fetchError := service.fetch(executionContext, options.RepositoryPath); fetchError != nil {
		return Result{State: StateAborted}, fetchError
	}

	baseCommit, baseError := service.resolveBase(executionContext, options.RepositoryPath, remoteReference)
	if baseError != nil {
		return Result{State: StateAborted}, baseError
	}

	trimmedTarget := strings.TrimSpace(options.Target)
	if len(trimmedTarget) == 0 || options.DryRun {
		result, listError := service.listCandidates(executionContext, options.RepositoryPath, baseCommit, remoteReference, trimmedTarget, options.DryRun)
		service.logCompletion(result.State, trimmedTarget)
		return result, listError
	}

	result, runError := service.transplant(executionContext, options.RepositoryPath, baseCommit, trimmedTarget)
	service.logCompletion(result.State, trimmedTarget)
	return result, runError
}

func (service *Service) ensureRemote(executionContext context.Context, repositoryPath string) error {
	fmt.Fprintf(service.outputWriter, ensureRemoteStatusTemplateConstant, service.configuration.RemoteName)

	hasRemote, lookupError := service.gitManager.HasRemote(executionContext, repositoryPath, service.configuration.RemoteName)
	if lookupError != nil {
		return lookupError
	}
	if hasRemote {
		fmt.Fprintf(service.outputWriter, remotePresentStatusTemplateConstant, service.configuration.RemoteName)
		return nil
	}

	if _, parseError := gitrepo.ParseRemoteURL(service.configuration.RemoteURL); parseError != nil {
		return parseError
	}

	if addError := service.gitManager.AddRemote(executionContext, repositoryPath, service.configuration.RemoteName, service.configuration.RemoteURL); addError != nil {
		return addError
	}
	fmt.Fprintf(service.outputWriter, remoteRegisteredStatusTemplateConstant, service.configuration.RemoteName, service.configuration.RemoteURL)
	return nil
}

func (service *Service) fetch(executionContext context.Context, repositoryPath string) error {
	fmt.Fprintf(service.outputWriter, fetchStatusTemplateConstant, service.configuration.BranchName, service.configuration.RemoteName)
	if fetchError := service.gitManager.Fetch(executionContext, repositoryPath, service.configuration.RemoteName, service.configuration.BranchName); fetchError != nil {
		return fetchError
	}
	fmt.Fprintf(service.outputWriter, fetchCompletedStatusTemplateConstant, service.configuration.BranchName, service.configuration.RemoteName)
	return nil
}

func (service *Service) resolveBase(executionContext context.Context, repositoryPath string, remoteReference string) (string, error) {
	fmt.Fprintf(service.outputWriter, resolveBaseStatusTemplateConstant, remoteReference)

	baseCommit, mergeBaseError := service.gitManager.MergeBase(executionContext, repositoryPath, "HEAD", remoteReference)
	if mergeBaseError != nil {
		if errors.Is(mergeBaseError, gitrepo.ErrNoCommonAncestor) {
			return "", fmt.Errorf(noCommonAncestorTemplateConstant, service.configuration.RemoteName, service.configuration.BranchName)
		}
		return "", mergeBaseError
	}

	fmt.Fprintf(service.outputWriter, baseResolvedStatusTemplateConstant, baseCommit)
	return baseCommit, nil
}

func (service *Service) listCandidates(executionContext context.Context, repositoryPath string, baseCommit string, remoteReference string, target string, dryRun bool) (Result, error) {
	if dryRun && len(target) > 0 {
		fmt.Fprintf(service.outputWriter, dryRunStatusTemplateConstant, target)
	}

	listRange := fmt.Sprintf(listRangeTemplateConstant, baseCommit, remoteReference)
	candidates, listError := service.gitManager.ListCommits(executionContext, repositoryPath, listRange, service.configuration.PreviewCount)
	if listError != nil {
		return Result{State: StateAborted}, listError
	}

	if len(candidates) == 0 {
		fmt.Fprint(service.outputWriter, noCandidatesMessageConstant)
		return Result{State: StateListed, BaseCommit: baseCommit}, nil
	}

	fmt.Fprintf(service.outputWriter, candidateListHeaderTemplateConstant, len(candidates), baseCommit, remoteReference, service.configuration.PreviewCount)
	for _, candidate := range candidates {
		fmt.Fprintf(service.outputWriter, candidateLineTemplateConstant, candidate.Hash, candidate.Subject)
	}
	fmt.Fprint(service.outputWriter, candidateHintMessageConstant)

	return Result{State: StateListed, BaseCommit: baseCommit, Candidates: candidates}, nil
}

func (service *Service) transplant(executionContext context.Context, repositoryPath string, baseCommit string, target string) (Result, error) {
	transplantExpression, finalizeSource, targetError := parseTarget(target)
	if targetError != nil {
		return Result{State: StateAborted}, targetError
	}

	cleanWorktree, cleanError := service.gitManager.CheckCleanWorktree(executionContext, repositoryPath)
	if cleanError != nil {
		return Result{State: StateAborted}, cleanError
	}
	if !cleanWorktree {
		return Result{State: StateAborted}, ErrDirtyWorktree
	}

	fmt.Fprintf(service.outputWriter, transplantStatusTemplateConstant, target)
	if transplantError := service.gitManager.TransplantWithoutCommit(executionContext, repositoryPath, transplantExpression); transplantError != nil {
		conflictError := gitrepo.TransplantConflictError{}
		if errors.As(transplantError, &conflictError) {
			fmt.Fprint(service.errorWriter, conflictAdviceMessageConstant)
			return Result{State: StateConflict, BaseCommit: baseCommit}, fmt.Errorf(conflictErrorTemplateConstant, transplantError)
		}
		return Result{State: StateAborted, BaseCommit: baseCommit}, transplantError
	}
	fmt.Fprint(service.outputWriter, transplantAppliedStatusConstant)

	fmt.Fprint(service.outputWriter, scrubStatusMessageConstant)
	pathActions, scrubError := service.scrubber.Scrub(executionContext, repositoryPath, service.catalog.BannedPathPrefixes, finalizeSource)
	if scrubError != nil {
		return Result{State: StateAborted, BaseCommit: baseCommit, ScrubActions: pathActions}, scrubError
	}
	if len(pathActions) > 0 {
		fmt.Fprintf(service.outputWriter, scrubCompletedStatusTemplateConstant, len(pathActions))
	} else {
		fmt.Fprint(service.outputWriter, scrubCleanStatusMessageConstant)
	}

	allowlistActions, allowlistError := service.scrubber.ResetBuildAllowlist(repositoryPath, service.catalog.ExpectedBuildAllowlist, finalizeSource)
	scrubActions := append(pathActions, allowlistActions...)
	if allowlistError != nil {
		return Result{State: StateAborted, BaseCommit: baseCommit, ScrubActions: scrubActions}, allowlistError
	}
	if len(allowlistActions) > 0 {
		fmt.Fprintf(service.outputWriter, allowlistResetStatusTemplateConstant, len(allowlistActions))
	}

	if len(scrubActions) > 0 {
		if stageError := service.gitManager.StageAllChanges(executionContext, repositoryPath); stageError != nil {
			return Result{State: StateAborted, BaseCommit: baseCommit, ScrubActions: scrubActions}, stageError
		}
	}

	fmt.Fprintf(service.outputWriter, finalizeStatusTemplateConstant, finalizeSource)
	if commitError := service.gitManager.CommitReusingMessage(executionContext, repositoryPath, finalizeSource); commitError != nil {
		return Result{State: StateAborted, BaseCommit: baseCommit, ScrubActions: scrubActions}, commitError
	}
	fmt.Fprint(service.outputWriter, finalizeCompletedStatusConstant)

	verificationReport, verificationSkipped := service.verify(repositoryPath)

	return Result{
		State:               StateDone,
		BaseCommit:          baseCommit,
		ScrubActions:        scrubActions,
		VerificationReport:  verificationReport,
		VerificationSkipped: verificationSkipped,
	}, nil
}

func (service *Service) verify(repositoryPath string) (scan.Report, bool) {
	if service.verifier == nil {
		fmt.Fprint(service.errorWriter, verifySkippedWarningMessageConstant)
		return scan.Report{}, true
	}

	fmt.Fprint(service.outputWriter, verifyStatusMessageConstant)
	verificationReport, verificationError := service.verifier.Scan(repositoryPath)
	if verificationError != nil {
		fmt.Fprint(service.errorWriter, verifySkippedWarningMessageConstant)
		return scan.Report{}, true
	}

	if verificationReport.Clean() {
		fmt.Fprint(service.outputWriter, verifyCleanStatusMessageConstant)
		return verificationReport, false
	}

	fmt.Fprint(service.errorWriter, verifyFindingsWarningMessageConstant)
	renderer := scan.ReportRenderer{}
	_ = renderer.Render(service.errorWriter, service.verifier.RuleTitles(), verificationReport)
	return verificationReport, false
}

func (service *Service) logCompletion(state RunState, target string) {
	service.logger.Info(
		runCompletedLogMessageConstant,
		zap.String(runStateLogFieldNameConstant, string(state)),
		zap.String(targetLogFieldNameConstant, target),
	)
}

// parseTarget resolves a target argument into the git range expression applied
// by the transplant and the commit whose metadata the finalized commit reuses.
// A range <first>..<last> is treated as inclusive of both endpoints.
func parseTarget(target string) (string, string, error) {
	if len(target) == 0 {
		return "", "", ErrEmptyTarget
	}

	if !strings.Contains(target, rangeDelimiterConstant) {
		return target, target, nil
	}

	rangeParts := strings.SplitN(target, rangeDelimiterConstant, 2)
	firstCommit := strings.TrimSpace(rangeParts[0])
	lastCommit := strings.TrimSpace(rangeParts[1])
	if len(firstCommit) == 0 || len(lastCommit) == 0 {
		return "", "", ErrInvalidRange
	}

	return fmt.Sprintf(inclusiveRangeTemplateConstant, firstCommit, lastCommit), lastCommit, nil
}
