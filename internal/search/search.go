package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string   `json:"id"`
	Bucket    string   `json:"bucket"`
	Snippet   string   `json:"snippet"`
	Tags      []string `json:"tags"`
	Timestamp string   `json:"timestamp"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Bucket string // empty = all buckets
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// MessageRecord is the data we index for a message.
type MessageRecord struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	Bucket    string   `json:"bucket"`
	Timestamp string   `json:"timestamp"`
}
