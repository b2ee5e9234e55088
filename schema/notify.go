package schema

// TabEventType describes tab lifecycle or state changes.
type TabEventType string

const (
	// TabEventCreated indicates a tab was created.
	TabEventCreated TabEventType = "created"
	// TabEventClosing indicates a tab left the order and is animating offscreen.
	TabEventClosing TabEventType = "closing"
	// TabEventClosed indicates a tab was removed.
	TabEventClosed TabEventType = "closed"
	// TabEventActivated indicates a tab became active.
	TabEventActivated TabEventType = "activated"
	// TabEventUpdated indicates a tab url or progress changed.
	TabEventUpdated TabEventType = "updated"
	// TabEventScreenshot indicates a new screenshot was published for a tab.
	TabEventScreenshot TabEventType = "screenshot"
)

// TabEvent represents a change to a tab or tab list.
type TabEvent struct {
	Type        TabEventType `json:"type"`
	Tab         TabSnapshot  `json:"tab"`
	ActiveTab   TabID        `json:"active_tab,omitempty"`
	ActiveIndex int          `json:"active_index"`
}
