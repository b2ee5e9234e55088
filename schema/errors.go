package schema

import "errors"

var (
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrNoTabs indicates no tabs are open.
	ErrNoTabs = errors.New("no tabs")
	// ErrDuplicateTab indicates a tab id is already present in the tab order.
	ErrDuplicateTab = errors.New("duplicate tab")
	// ErrInvalidTransition indicates a state machine rejected an event.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrMailboxFull indicates background work was dropped because the queue is full.
	ErrMailboxFull = errors.New("mailbox full")
	// ErrMailboxClosed indicates background work was posted after shutdown.
	ErrMailboxClosed = errors.New("mailbox closed")
	// ErrEngineUnavailable indicates no webview engine is configured.
	ErrEngineUnavailable = errors.New("webview engine not configured")
	// ErrCaptureIneligible indicates a tab cannot be captured right now.
	ErrCaptureIneligible = errors.New("tab not eligible for capture")
	// ErrScreenshotNotFound indicates no screenshot is stored for a tab.
	ErrScreenshotNotFound = errors.New("screenshot not found")
	// ErrInvalidConfig indicates a configuration value is out of range.
	ErrInvalidConfig = errors.New("invalid config")
)
