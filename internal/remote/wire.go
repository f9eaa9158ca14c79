package remote

import "github.com/tessro/encore/internal/core"

// Paths served by the remote history service.
const (
	HistoryPath = "/api/recently-played"
	HealthPath  = "/health"
)

// ListResponse is the body of GET /api/recently-played/{userId}.
// Songs is a pointer so a missing field can be told apart from an empty list.
type ListResponse struct {
	Success bool                  `json:"success"`
	Songs   *[]core.HistoryRecord `json:"songs,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// SaveRequest is the body of POST /api/recently-played.
type SaveRequest struct {
	UserID string              `json:"userId"`
	Song   *core.HistoryRecord `json:"song"`
}

// StatusResponse is the body of write endpoints.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
