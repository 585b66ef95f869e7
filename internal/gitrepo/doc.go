// Package gitrepo contains helpers for interrogating and manipulating Git repositories.
//
// It exposes RepositoryManager, the narrow capability surface the sync
// orchestrator relies on (remote management, fetch, merge-base resolution,
// commit listing, cherry-pick without committing, staging, and commit
// finalization), along with remote URL parsing utilities.
package gitrepo
