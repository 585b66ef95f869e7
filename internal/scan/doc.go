// Package scan implements the policy scanner: a stateless pass over a file
// tree that evaluates the policy catalog's rules and reports ordered findings.
//
// Rules are declared in a fixed table so each matcher can be tested in
// isolation from tree traversal. A scan is deterministic: findings appear in
// rule order, and within a rule in filesystem traversal order.
package scan
