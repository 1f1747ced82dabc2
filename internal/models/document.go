package models

// Document is the text of one fetched article plus where it came from.
type Document struct {
	URL     string
	Title   string
	Content string
}

// Chunk is a bounded window of a document's text, the unit of embedding
// and retrieval.
type Chunk struct {
	ID      string
	URL     string
	Ordinal int
	Text    string
}

// Entry pairs a chunk with its embedding vector inside the index.
type Entry struct {
	Chunk
	Vector []float32
}

// Scored is an entry returned from a similarity search.
type Scored struct {
	Entry
	Score float32
}

// Answer is the model's response plus the deduplicated URLs it cited.
type Answer struct {
	Text    string
	Sources []string
}

// ProcessReport summarizes one "process URLs" run.
type ProcessReport struct {
	IndexedURLs []string
	ChunkCount  int
	Warnings    []string
}
