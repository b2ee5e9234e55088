package schema

// Tab lifecycle.

// NewTabRequest describes a request to open a tab.
type NewTabRequest struct {
	// URL defaults to the home surface when empty.
	URL      string
	Activate bool
}

// NewTabResponse reports the created tab.
type NewTabResponse struct {
	Tab TabSnapshot
}

// CloseTabRequest describes a request to close a tab without a close animation.
type CloseTabRequest struct {
	TabID TabID
}

// CloseTabResponse reports the closed tab snapshot.
type CloseTabResponse struct {
	Tab TabSnapshot
}

// ListTabsRequest describes a request to list tabs.
type ListTabsRequest struct{}

// ListTabsResponse reports tabs and tab view state.
type ListTabsResponse struct {
	List TabListSnapshot
}

// ActivateTabRequest describes a request to activate a tab.
type ActivateTabRequest struct {
	TabID TabID
}

// ActivateTabResponse reports the activated tab snapshot.
type ActivateTabResponse struct {
	Tab TabSnapshot
}

// Tab view.

// TabViewRequest describes a button-driven tab view transition.
type TabViewRequest struct{}

// TabViewResponse reports the tab view state after the transition settled.
type TabViewResponse struct {
	Visible  bool    `json:"visible" yaml:"visible"`
	Progress float64 `json:"progress" yaml:"progress"`
	// ScrollOffset centres the active tab's row when the grid is visible.
	ScrollOffset float64 `json:"scroll_offset" yaml:"scroll_offset"`
}

// Restore.

// RestoreRequest describes a request to load persisted tabs.
type RestoreRequest struct{}

// RestoreResponse reports the restored tab list.
type RestoreResponse struct {
	List     TabListSnapshot `json:"list" yaml:"list"`
	Restored bool            `json:"restored" yaml:"restored"`
	// Screenshots counts records hydrated from screenshot storage.
	Screenshots int `json:"screenshots" yaml:"screenshots"`
}
