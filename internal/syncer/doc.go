// Package syncer implements the selective synchronization pipeline: it pulls
// candidate changesets from the upstream remote, transplants them onto the
// fork one target at a time, scrubs banned content before finalizing each
// transplant, and re-validates the tree with the policy scanner afterwards.
package syncer
