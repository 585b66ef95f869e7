// Package ui renders shell command lifecycle events for interactive console sessions.
package ui
