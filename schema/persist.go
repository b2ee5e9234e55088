package schema

// SavedTab is the persisted subset of a tab.
type SavedTab struct {
	ID  TabID  `json:"id"`
	URL string `json:"url"`
}

// SavedTabs is the persisted tab order with the committed active index.
type SavedTabs struct {
	Order  []TabID    `json:"order"`
	Active int        `json:"active"`
	Tabs   []SavedTab `json:"tabs"`
}
