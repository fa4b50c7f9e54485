package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Brownie44l1/waste-api/internal/history"
	"github.com/Brownie44l1/waste-api/internal/imaging"
	"github.com/Brownie44l1/waste-api/internal/logging"
	"github.com/Brownie44l1/waste-api/internal/model"
	"github.com/Brownie44l1/waste-api/internal/phase"
	"github.com/Brownie44l1/waste-api/internal/session"
	"github.com/Brownie44l1/waste-api/internal/store"
	"github.com/Brownie44l1/waste-api/internal/view"
	"github.com/Brownie44l1/waste-api/internal/workflow"
)

// DefaultMaxUploadSize bounds request bodies carrying images.
const DefaultMaxUploadSize = 10 << 20

// imageField is the multipart field name for uploads.
const imageField = "image"

// History is the read side of the classification history.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Classification, error)
	CountByLabel(ctx context.Context) (map[string]int64, error)
}

type Handler struct {
	sessions     *session.Manager
	images       *store.Images
	loader       model.Loader
	history      History
	historyLimit int
	gatherer     prometheus.Gatherer
	maxUpload    int64
	logger       *zap.Logger
}

type Config struct {
	Sessions     *session.Manager
	Images       *store.Images
	Loader       model.Loader
	History      History
	HistoryLimit int
	Gatherer     prometheus.Gatherer
	MaxUpload    int64
	Logger       *zap.Logger
}

func NewHandler(cfg Config) *Handler {
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = DefaultMaxUploadSize
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Handler{
		sessions:     cfg.Sessions,
		images:       cfg.Images,
		loader:       cfg.Loader,
		history:      cfg.History,
		historyLimit: cfg.HistoryLimit,
		gatherer:     cfg.Gatherer,
		maxUpload:    cfg.MaxUpload,
		logger:       cfg.Logger.Named("handlers"),
	}
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(enableCORS())

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	router.POST("/sessions", h.CreateSession)
	router.GET("/sessions/:id", h.GetSession)
	router.POST("/sessions/:id/press", h.Press)
	router.POST("/sessions/:id/files", h.SelectFiles)
	router.DELETE("/sessions/:id", h.DeleteSession)

	router.GET("/images/:id", h.Image)
	router.GET("/history", h.History)

	router.POST("/predict", h.Predict)
	router.POST("/predict/image", h.PredictFromImage)
}

func enableCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) CreateSession(c *gin.Context) {
	s := h.sessions.Create()
	c.JSON(http.StatusCreated, render(s))
}

func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, render(s))
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Press runs whatever the primary button does in the session's current phase.
// An optional expect query names the phase the client rendered the button
// in; a press against any other phase is refused as stale.
func (h *Handler) Press(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if raw := c.Query("expect"); raw != "" {
		want, known := phase.Parse(raw)
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown phase " + strconv.Quote(raw)})
			return
		}
		if cur := s.Driver.Snapshot().Phase; cur != want {
			c.JSON(http.StatusConflict, gin.H{"error": "session is in phase " + cur.String(), "view": render(s)})
			return
		}
	}
	action, err := s.Driver.Press(c.Request.Context())
	if err != nil {
		h.workflowError(c, s, "handlers.press", err)
		return
	}
	h.logger.Debug("button pressed", zap.String("session_id", s.ID), zap.String("action", string(action)))
	c.JSON(http.StatusOK, render(s))
}

// SelectFiles is the file-picker completion event. A form with no files
// leaves the session untouched.
func (h *Handler) SelectFiles(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	headers, ok := h.parseUpload(c)
	if !ok {
		return
	}

	files := make([]workflow.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read image"})
			return
		}
		files = append(files, workflow.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data})
	}

	if err := s.Driver.HandleFileSelected(files); err != nil {
		h.workflowError(c, s, "handlers.select_files", err)
		return
	}
	c.JSON(http.StatusOK, render(s))
}

// Image serves an uploaded image. With max set it serves a PNG scaled down to
// fit within max pixels on each side.
func (h *Handler) Image(c *gin.Context) {
	blob, ok := h.images.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.Header("X-Content-Type-Options", "nosniff")

	if raw := c.Query("max"); raw != "" {
		edge, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || edge == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max must be a positive integer"})
			return
		}
		preview, err := imaging.Preview(blob.Data, uint(edge))
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid image format"})
			return
		}
		c.Data(http.StatusOK, "image/png", preview)
		return
	}

	contentType := blob.ContentType
	if !imaging.Supported(contentType) {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, blob.Data)
}

func (h *Handler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, h.historyLimit)
	}

	ctx := c.Request.Context()
	items, err := h.history.Recent(ctx, limit)
	if err != nil {
		h.logger.Error("history query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	counts, err := h.history.CountByLabel(ctx)
	if err != nil {
		h.logger.Error("history aggregation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	entries := make([]historyEntry, 0, len(items))
	for _, item := range items {
		entry := historyEntry{Classification: item}
		if r, err := item.Result(); err == nil {
			entry.Lines = r.Lines()
		} else {
			h.logger.Warn("stored probabilities unreadable", zap.Uint("id", item.ID), zap.Error(err))
		}
		entries = append(entries, entry)
	}
	c.JSON(http.StatusOK, gin.H{"items": entries, "counts": counts})
}

type historyEntry struct {
	history.Classification
	Lines []string `json:"lines,omitempty"`
}

// Predict classifies a raw preprocessed tensor without a session.
func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if len(req.Image) != imaging.TensorLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Expected %d values, got %d", imaging.TensorLen, len(req.Image))})
		return
	}
	h.predict(c, req.Image)
}

// PredictFromImage decodes and classifies an uploaded image without a session.
func (h *Handler) PredictFromImage(c *gin.Context) {
	headers, ok := h.parseUpload(c)
	if !ok {
		return
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided. Use 'image' as the form field name"})
		return
	}

	data, err := readPart(headers[0])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read image"})
		return
	}
	tensor, err := imaging.Tensor(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image format"})
		return
	}
	h.predict(c, tensor)
}

func (h *Handler) predict(c *gin.Context, input []float32) {
	ctx := c.Request.Context()
	m, err := h.loader.Load(ctx)
	if err != nil {
		h.logger.Error("model load failed", logging.ErrorField(logging.Wrap("handlers.predict", "", err)))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Model unavailable"})
		return
	}
	result, err := model.Classify(ctx, m, input)
	if err != nil {
		h.logger.Error("prediction failed", logging.ErrorField(logging.Wrap("handlers.predict", "", err)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
		return
	}
	c.JSON(http.StatusOK, model.NewPredictionResponse(result))
}

func (h *Handler) lookup(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return s, true
}

// parseUpload reads the multipart body and returns the image parts. It writes
// the error response itself and reports false on failure.
func (h *Handler) parseUpload(c *gin.Context) ([]*multipart.FileHeader, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse form"})
		return nil, false
	}

	headers := form.File[imageField]
	for _, fh := range headers {
		if ct := fh.Header.Get("Content-Type"); !imaging.Supported(ct) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type " + strconv.Quote(ct)})
			return nil, false
		}
	}
	return headers, true
}

func (h *Handler) workflowError(c *gin.Context, s *session.Session, op string, err error) {
	logger := logging.WithOperation(h.logger, op, s.ID)
	switch {
	case errors.Is(err, workflow.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "view": render(s)})
	case errors.Is(err, workflow.ErrClosed):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	default:
		if _, ok := workflow.KindOf(err); ok {
			logger.Warn("workflow step failed", zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "view": render(s)})
			return
		}
		logger.Error("workflow error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func render(s *session.Session) view.View {
	return view.Render(s.ID, s.Driver.Snapshot(), s.Input.Requested())
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}
