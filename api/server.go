// Package api exposes the pipeline over HTTP with JSON requests and
// responses.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fabfab/ragstack/document"
	"github.com/fabfab/ragstack/rag"
)

const (
	maxUploadBytes  = 32 << 20
	shutdownTimeout = 10 * time.Second
)

// allowedExtensions is the upload allow-list. ".doc" is accepted at the
// boundary but rejected later by extraction, matching the service contract.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".docx": true,
	".md":   true,
	".doc":  true,
}

// Pipeline is the slice of the rag service the API depends on.
type Pipeline interface {
	IngestFile(ctx context.Context, path, documentID, filename string) (int, error)
	Query(ctx context.Context, question string, topK int) (rag.Answer, error)
	Reset(ctx context.Context) error
	Info(ctx context.Context) (rag.SystemInfo, error)
}

var _ Pipeline = (*rag.Service)(nil)

type Server struct {
	pipeline Pipeline
	uploads  *document.Uploads
	logger   *zap.Logger
	handler  http.Handler
	server   *http.Server
}

func NewServer(pipeline Pipeline, uploads *document.Uploads, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{pipeline: pipeline, uploads: uploads, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves HTTP on addr and blocks until the listener stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
	}
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/upload", s.handleUpload)
	r.Post("/query", s.handleQuery)
	r.Get("/documents", s.handleListDocuments)
	r.Delete("/documents/{id}", s.handleDeleteDocument)
	r.Post("/clear", s.handleClear)

	return r
}

type healthResponse struct {
	Status             string `json:"status"`
	EmbeddingProvider  string `json:"embedding_provider"`
	VectorDBType       string `json:"vector_db_type"`
	WebSearchAvailable bool   `json:"web_search_available"`
	DocumentsCount     int    `json:"documents_count"`
}

type uploadResponse struct {
	Message       string `json:"message"`
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	ChunksCreated int    `json:"chunks_created"`
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type queryResponse struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	Confidence *float64 `json:"confidence"`
}

type documentInfo struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	UploadDate string `json:"upload_date"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info, err := s.pipeline.Info(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("system info: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:             "healthy",
		EmbeddingProvider:  info.EmbeddingProvider,
		VectorDBType:       info.VectorBackend,
		WebSearchAvailable: info.WebSearchAvailable,
		DocumentsCount:     info.Records,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("file type %s not supported", ext))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("read upload: %w", err))
		return
	}

	docID, path, err := s.uploads.Save(content, header.Filename)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("save upload: %w", err))
		return
	}

	chunks, err := s.pipeline.IngestFile(r.Context(), path, docID, header.Filename)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("index document: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{
		Message:       "Document uploaded and indexed successfully",
		DocumentID:    docID,
		Filename:      header.Filename,
		ChunksCreated: chunks,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	answer, err := s.pipeline.Query(r.Context(), req.Question, req.TopK)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}

	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}

	s.writeJSON(w, http.StatusOK, queryResponse{
		Answer:  answer.Answer,
		Sources: sources,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	stored, err := s.uploads.List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("list documents: %w", err))
		return
	}

	documents := make([]documentInfo, len(stored))
	for i, doc := range stored {
		documents[i] = documentInfo{
			ID:         doc.ID,
			Filename:   doc.Filename,
			Size:       doc.Size,
			UploadDate: doc.UploadDate.Format(time.RFC3339),
		}
	}

	s.writeJSON(w, http.StatusOK, documents)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")

	deleted, err := s.uploads.Delete(documentID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("delete document: %w", err))
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("document %s not found", documentID))
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Document %s deleted successfully", documentID),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.uploads.Clear(); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear uploads: %w", err))
		return
	}

	if err := s.pipeline.Reset(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("reset collection: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "All documents cleared successfully"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info, err := s.pipeline.Info(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("system info: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "ragstack API is running",
		"endpoints": map[string]string{
			"health": "GET /health",
			"upload": "POST /upload",
			"query":  "POST /query",
			"list":   "GET /documents",
			"delete": "DELETE /documents/{id}",
			"clear":  "POST /clear",
		},
		"system_info": map[string]any{
			"embedding_provider":   info.EmbeddingProvider,
			"vector_db_type":       info.VectorBackend,
			"web_search_available": info.WebSearchAvailable,
			"records":              info.Records,
			"dimension":            info.Dimension,
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("api error", zap.Int("status", status), zap.Error(err))
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
