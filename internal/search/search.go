// Package search defines the retrieval capability the reasoning core
// consumes, plus the Weaviate-backed production implementation.
package search

import "context"

// Passage is one ranked result from a knowledge collection.
type Passage struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Retriever is the injected search capability. The core treats the
// vector backend as a black box returning ranked passages.
type Retriever interface {
	Search(ctx context.Context, query, collection string, limit int) ([]Passage, error)
}
