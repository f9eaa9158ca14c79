package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/remote"
)

const bannerMessage = "Encore history service is running"

// Handler serves the recently-played endpoints.
type Handler struct {
	repo   Repository
	keep   int
	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithKeep sets how many records each user keeps.
func WithKeep(n int) HandlerOption {
	return func(h *Handler) { h.keep = n }
}

// WithClock sets the clock used to stamp playedAt.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// WithIDFunc sets the generator for record ids.
func WithIDFunc(fn func() string) HandlerOption {
	return func(h *Handler) { h.newID = fn }
}

// WithHandlerLogger sets the handler's logger.
func WithHandlerLogger(logger zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler creates a handler backed by repo.
func NewHandler(repo Repository, opts ...HandlerOption) *Handler {
	h := &Handler{
		repo:   repo,
		keep:   DefaultKeep,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.Banner)
	r.GET(remote.HealthPath, h.Health)
	r.GET(remote.HistoryPath+"/:userId", h.List)
	r.POST(remote.HistoryPath, h.Save)
	r.DELETE(remote.HistoryPath+"/:userId/:filename", h.Delete)
}

// Banner answers GET / so a browser shows the service is up.
func (h *Handler) Banner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": bannerMessage})
}

// Health answers the liveness check used by clients before syncing.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// List handles GET /api/recently-played/:userId.
func (h *Handler) List(c *gin.Context) {
	userID := c.Param("userId")
	records, err := h.repo.List(c.Request.Context(), userID, h.keep)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, remote.ListResponse{Success: true, Songs: &records})
}

// Save handles POST /api/recently-played. The record's playedAt is stamped
// by the server; any record with the same filename is replaced.
func (h *Handler) Save(c *gin.Context) {
	var req remote.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil ||
		strings.TrimSpace(req.UserID) == "" || req.Song == nil || strings.TrimSpace(req.Song.Filename) == "" {
		c.JSON(http.StatusBadRequest, remote.StatusResponse{Error: "Missing required fields"})
		return
	}

	id := req.Song.ID
	if id == "" {
		id = h.newID()
	}
	rec := core.NewHistoryRecord(req.Song.Song(), core.NormalizeIdentity(req.UserID), h.now().UTC(),
		func() string { return id })

	if err := h.repo.Upsert(c.Request.Context(), rec, h.keep); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, remote.StatusResponse{Success: true, Message: "Recently played saved"})
}

// Delete handles DELETE /api/recently-played/:userId/:filename.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("userId"), c.Param("filename")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, remote.StatusResponse{Success: true})
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	h.logger.Error().Err(err).Str("request_id", GetRequestID(c)).Msg("history request failed")
	c.JSON(http.StatusInternalServerError, remote.StatusResponse{Error: err.Error()})
}
