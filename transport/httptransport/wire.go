package httptransport

import "github.com/c0deZ3R0/go-offline-queue/queuekit"

// createRequest is the body of POST /collections/{collection}/documents
type createRequest struct {
	ID   string         `json:"id,omitempty"`
	Data map[string]any `json:"data"`
}

// updateRequest is the body of PUT /collections/{collection}/documents/{id}.
// The expected version travels in the If-Match header.
type updateRequest struct {
	Data map[string]any `json:"data"`
}

type commitRequest struct {
	Operations []queuekit.Operation `json:"operations"`
}

type commitResponse struct {
	Documents []*queuekit.Document `json:"documents"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
}
