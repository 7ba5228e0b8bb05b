package search

// Result is a single task hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Snippet  string `json:"snippet"`
	Place    string `json:"place"`
	Address  string `json:"address"`
	Category int    `json:"category"`
	Status   int    `json:"status"`
}

// Query describes a task search request.
type Query struct {
	Text     string
	Category int // 0 = all categories
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over tasks.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// TaskRecord is the data we index per task.
type TaskRecord struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Place    string `json:"place"`
	Address  string `json:"address"`
	Category int    `json:"category"`
	Status   int    `json:"status"`
}
