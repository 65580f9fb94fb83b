package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Score is cosine similarity clamped to [0,1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// IndexInfo is the subset of FT.INFO the application reads.
type IndexInfo struct {
	NumDocs int
	// VectorDim is the DIM of the first vector attribute, 0 if none.
	VectorDim int
}
