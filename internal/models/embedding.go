package models

import "time"

// Chunk is a token-bounded unit of document text with its embedding.
type Chunk struct {
	Content    string        `json:"content"`
	TokenCount int           `json:"token_count"`
	Embedding  []float32     `json:"embedding"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// ChunkMetadata carries the chunk's position within its source file.
type ChunkMetadata struct {
	Filename    string `json:"filename"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// Payload is what the vector store keeps next to each vector.
type Payload struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	TokenCount  int    `json:"token_count"`
}

// PayloadFor builds the store payload of a chunk.
func PayloadFor(c Chunk) Payload {
	return Payload{
		Content:     c.Content,
		Filename:    c.Metadata.Filename,
		ChunkIndex:  c.Metadata.ChunkIndex,
		TotalChunks: c.Metadata.TotalChunks,
		TokenCount:  c.TokenCount,
	}
}

type SearchResult struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	TokenCount int     `json:"token_count"`
	Score      float64 `json:"score"`
}

type UploadResult struct {
	Filename      string  `json:"filename"`
	ChunksCreated int     `json:"chunks_created"`
	ChunksStored  int     `json:"chunks_stored"`
	TotalTokens   int     `json:"total_tokens"`
	Chunks        []Chunk `json:"chunks"`
}

type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type QueryResponse struct {
	Answer         string         `json:"answer"`
	Sources        []string       `json:"sources"`
	SearchResults  []SearchResult `json:"search_results"`
	SessionID      string         `json:"session_id"`
	UsedDocuments  bool           `json:"used_documents"`
	IntentAnalysis IntentAnalysis `json:"intent_analysis"`
}

// IntentAnalysis is recomputed for every query.
type IntentAnalysis struct {
	PrimarySegment        string         `json:"primary_segment"`
	PrimaryIntentCategory string         `json:"primary_intent_category"`
	PrimaryJobToBeDone    string         `json:"primary_job_to_be_done"`
	SegmentScores         map[string]int `json:"segment_scores"`
	CategoryScores        map[string]int `json:"category_scores"`
	JobScores             map[string]int `json:"job_scores"`
	Confidence            float64        `json:"confidence"`
}

type HealthStatus struct {
	Status      string    `json:"status"`
	StoreReady  bool      `json:"store_ready"`
	VectorCount int       `json:"vector_count"`
	CheckedAt   time.Time `json:"checked_at"`
}
