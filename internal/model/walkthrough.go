package model

// WalkthroughStep is one panel of the guided product tour.
type WalkthroughStep struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Target string `json:"target,omitempty"`
}

// WalkthroughState is the current position in the tour.
type WalkthroughState struct {
	Active bool             `json:"active"`
	Index  int              `json:"index"`
	Total  int              `json:"total"`
	Step   *WalkthroughStep `json:"step,omitempty"`
}
