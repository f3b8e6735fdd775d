package model

// LoadedDocument is an uploaded document held in memory. Name is the unique key.
type LoadedDocument struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// DocumentSummary is the listing form of a document.
type DocumentSummary struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// UploadResult reports the outcome for one uploaded file.
type UploadResult struct {
	Name    string `json:"name"`
	Added   bool   `json:"added"`
	Skipped string `json:"skipped,omitempty"`
}

// IndexState is the lifecycle state of the retrieval index.
type IndexState string

const (
	IndexEmpty    IndexState = "empty"
	IndexBuilding IndexState = "building"
	IndexReady    IndexState = "ready"
	IndexError    IndexState = "error"
)

// IndexStatus is the user-visible status of the retrieval index.
type IndexStatus struct {
	State      IndexState `json:"state"`
	Message    string     `json:"message"`
	Documents  int        `json:"documents"`
	Chunks     int        `json:"chunks"`
	Generation uint64     `json:"generation"`
}
