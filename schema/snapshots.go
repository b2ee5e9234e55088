package schema

// TabSnapshot is a read-only view of tab state for transports.
type TabSnapshot struct {
	ID       TabID   `json:"id" yaml:"id"`
	URL      string  `json:"url" yaml:"url"`
	Progress float64 `json:"progress" yaml:"progress"`
	Index    int     `json:"index" yaml:"index"`
	Active   bool    `json:"active" yaml:"active"`
	Closing  bool    `json:"closing,omitempty" yaml:"closing,omitempty"`
	// Screenshot is the display URI when the screenshot should be shown in place of live content.
	Screenshot string `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`
}

// TabListSnapshot is the ordered tab list with the committed active index.
type TabListSnapshot struct {
	Tabs           []TabSnapshot `json:"tabs" yaml:"tabs"`
	ActiveIndex    int           `json:"active_index" yaml:"active_index"`
	Closing        []TabID       `json:"closing,omitempty" yaml:"closing,omitempty"`
	TabViewVisible bool          `json:"tab_view_visible" yaml:"tab_view_visible"`
	Progress       float64       `json:"progress" yaml:"progress"`
}
