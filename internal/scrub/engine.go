package scrub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

const (
	fileSystemMissingMessageConstant        = "file system not configured"
	pathRemovedLogMessageConstant           = "banned path removed"
	allowlistEntryRemovedLogMessageConstant = "unexpected build allowlist entry removed"
	removedPathLogFieldNameConstant         = "path"
	allowlistEntryLogFieldNameConstant      = "entry"
	sourceCommitLogFieldNameConstant        = "triggering_commit"

	rootManifestFileNameConstant        = "package.json"
	manifestPnpmBlockKeyConstant        = "pnpm"
	manifestAllowlistKeyConstant        = "onlyBuiltDependencies"
	manifestIndentConstant              = "  "
	manifestFilePermissionsConstant     = fs.FileMode(0o644)
	manifestParseErrorTemplateConstant  = "failed to parse manifest %s: %w"
	manifestEncodeErrorTemplateConstant = "failed to encode manifest %s: %w"
)

// ErrFileSystemNotConfigured reports a missing filesystem dependency.
var ErrFileSystemNotConfigured = errors.New(fileSystemMissingMessageConstant)

// ActionKind distinguishes the two remediations the engine performs.
type ActionKind string

// Remediation kinds.
const (
	ActionKindPathRemoval    ActionKind = "path_removal"
	ActionKindAllowlistReset ActionKind = "allowlist_reset"
)

// Action records one remediation applied to the working tree: a banned path
// removed, or an unexpected build allowlist entry dropped from the root
// manifest. Path holds the removed tree path for the former and the removed
// allowlist entry for the latter.
type Action struct {
	Kind             ActionKind
	Path             string
	TriggeringCommit string
}

// FileSystem provides the filesystem operations the engine requires.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	RemoveAll(path string) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte, permissions fs.FileMode) error
}

// OSFileSystem implements FileSystem using the operating system.
type OSFileSystem struct{}

// Stat delegates to os.Stat.
func (OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// RemoveAll delegates to os.RemoveAll.
func (OSFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// ReadFile delegates to os.ReadFile.
func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile delegates to os.WriteFile.
func (OSFileSystem) WriteFile(path string, content []byte, permissions fs.FileMode) error {
	return os.WriteFile(path, content, permissions)
}

// TrackingRemover drops removed paths from version-control tracking.
type TrackingRemover interface {
	RemovePathFromIndex(executionContext context.Context, repositoryPath string, trackedPath string) error
}

// Engine applies the remediations folded into a transplant: removing banned
// path prefixes from a working tree and resetting the root manifest's build
// allowlist. A banned path that does not exist is silently skipped, which
// makes repeated scrubs of the same tree produce an empty action list after
// the first pass.
type Engine struct {
	fileSystem      FileSystem
	trackingRemover TrackingRemover
	logger          *zap.Logger
}

// NewEngine constructs an Engine. The tracking remover may be nil when the
// caller only needs working-tree removal.
func NewEngine(fileSystem FileSystem, trackingRemover TrackingRemover, logger *zap.Logger) (*Engine, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{fileSystem: fileSystem, trackingRemover: trackingRemover, logger: logger}, nil
}

// Scrub removes every banned prefix present under repositoryPath and reports
// one Action per removal. The triggering commit is recorded on each action for
// operator-facing logs.
func (engine *Engine) Scrub(executionContext context.Context, repositoryPath string, bannedPrefixes []string, triggeringCommit string) ([]Action, error) {
	sortedPrefixes := append([]string{}, bannedPrefixes...)
	sort.Strings(sortedPrefixes)

	var actions []Action
	for _, bannedPrefix := range sortedPrefixes {
		bannedPath := filepath.Join(repositoryPath, filepath.FromSlash(bannedPrefix))
		if _, statError := engine.fileSystem.Stat(bannedPath); statError != nil {
			continue
		}

		if removalError := engine.fileSystem.RemoveAll(bannedPath); removalError != nil {
			return actions, removalError
		}

		if engine.trackingRemover != nil {
			if trackingError := engine.trackingRemover.RemovePathFromIndex(executionContext, repositoryPath, bannedPrefix); trackingError != nil {
				return actions, trackingError
			}
		}

		engine.logger.Info(
			pathRemovedLogMessageConstant,
			zap.String(removedPathLogFieldNameConstant, bannedPrefix),
			zap.String(sourceCommitLogFieldNameConstant, triggeringCommit),
		)
		actions = append(actions, Action{Kind: ActionKindPathRemoval, Path: bannedPrefix, TriggeringCommit: triggeringCommit})
	}

	return actions, nil
}

// ResetBuildAllowlist rewrites the root manifest's build allowlist so that it
// declares only entries from expectedAllowlist, reporting one Action per
// removed entry. A tree without a root manifest or without a declared
// allowlist is left untouched. Idempotent: a second invocation on the same
// tree produces an empty action list.
func (engine *Engine) ResetBuildAllowlist(repositoryPath string, expectedAllowlist []string, triggeringCommit string) ([]Action, error) {
	manifestPath := filepath.Join(repositoryPath, rootManifestFileNameConstant)
	manifestContent, readError := engine.fileSystem.ReadFile(manifestPath)
	if readError != nil {
		if errors.Is(readError, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, readError
	}

	var manifestDocument map[string]json.RawMessage
	if unmarshalError := json.Unmarshal(manifestContent, &manifestDocument); unmarshalError != nil {
		return nil, fmt.Errorf(manifestParseErrorTemplateConstant, rootManifestFileNameConstant, unmarshalError)
	}

	pnpmContent, hasPnpmBlock := manifestDocument[manifestPnpmBlockKeyConstant]
	if !hasPnpmBlock {
		return nil, nil
	}
	var pnpmBlock map[string]json.RawMessage
	if unmarshalError := json.Unmarshal(pnpmContent, &pnpmBlock); unmarshalError != nil {
		return nil, fmt.Errorf(manifestParseErrorTemplateConstant, rootManifestFileNameConstant, unmarshalError)
	}

	allowlistContent, hasAllowlist := pnpmBlock[manifestAllowlistKeyConstant]
	if !hasAllowlist {
		return nil, nil
	}
	var declaredAllowlist []string
	if unmarshalError := json.Unmarshal(allowlistContent, &declaredAllowlist); unmarshalError != nil {
		return nil, fmt.Errorf(manifestParseErrorTemplateConstant, rootManifestFileNameConstant, unmarshalError)
	}

	expectedEntries := make(map[string]struct{}, len(expectedAllowlist))
	for _, expectedEntry := range expectedAllowlist {
		expectedEntries[expectedEntry] = struct{}{}
	}

	keptEntries := make([]string, 0, len(declaredAllowlist))
	var actions []Action
	for _, declaredEntry := range declaredAllowlist {
		if _, expected := expectedEntries[declaredEntry]; expected {
			keptEntries = append(keptEntries, declaredEntry)
			continue
		}
		engine.logger.Info(
			allowlistEntryRemovedLogMessageConstant,
			zap.String(allowlistEntryLogFieldNameConstant, declaredEntry),
			zap.String(sourceCommitLogFieldNameConstant, triggeringCommit),
		)
		actions = append(actions, Action{Kind: ActionKindAllowlistReset, Path: declaredEntry, TriggeringCommit: triggeringCommit})
	}
	if len(actions) == 0 {
		return nil, nil
	}

	encodedAllowlist, allowlistEncodeError := json.Marshal(keptEntries)
	if allowlistEncodeError != nil {
		return nil, fmt.Errorf(manifestEncodeErrorTemplateConstant, rootManifestFileNameConstant, allowlistEncodeError)
	}
	pnpmBlock[manifestAllowlistKeyConstant] = encodedAllowlist

	encodedPnpmBlock, pnpmEncodeError := json.Marshal(pnpmBlock)
	if pnpmEncodeError != nil {
		return nil, fmt.Errorf(manifestEncodeErrorTemplateConstant, rootManifestFileNameConstant, pnpmEncodeError)
	}
	manifestDocument[manifestPnpmBlockKeyConstant] = encodedPnpmBlock

	rewrittenManifest, manifestEncodeError := json.MarshalIndent(manifestDocument, "", manifestIndentConstant)
	if manifestEncodeError != nil {
		return nil, fmt.Errorf(manifestEncodeErrorTemplateConstant, rootManifestFileNameConstant, manifestEncodeError)
	}
	rewrittenManifest = append(rewrittenManifest, '\n')

	if writeError := engine.fileSystem.WriteFile(manifestPath, rewrittenManifest, manifestFilePermissionsConstant); writeError != nil {
		return nil, writeError
	}

	return actions, nil
}
