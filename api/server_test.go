package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fabfab/ragstack/document"
	"github.com/fabfab/ragstack/rag"
)

type stubPipeline struct {
	chunks     int
	ingestErr  error
	answer     rag.Answer
	queryErr   error
	resetCalls int
	info       rag.SystemInfo
}

func (s *stubPipeline) IngestFile(ctx context.Context, path, documentID, filename string) (int, error) {
	if s.ingestErr != nil {
		return 0, s.ingestErr
	}
	return s.chunks, nil
}

func (s *stubPipeline) Query(ctx context.Context, question string, topK int) (rag.Answer, error) {
	if s.queryErr != nil {
		return rag.Answer{}, s.queryErr
	}
	return s.answer, nil
}

func (s *stubPipeline) Reset(ctx context.Context) error {
	s.resetCalls++
	return nil
}

func (s *stubPipeline) Info(ctx context.Context) (rag.SystemInfo, error) {
	return s.info, nil
}

var _ Pipeline = (*stubPipeline)(nil)

func newTestServer(t *testing.T, pipeline *stubPipeline) (*Server, *document.Uploads) {
	t.Helper()
	uploads, err := document.NewUploads(t.TempDir())
	if err != nil {
		t.Fatalf("create uploads: %v", err)
	}
	return NewServer(pipeline, uploads, nil), uploads
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestUploadSuccess(t *testing.T) {
	server, _ := newTestServer(t, &stubPipeline{chunks: 2})

	body, contentType := multipartBody(t, "report.txt", "some words here")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ChunksCreated != 2 {
		t.Fatalf("chunks_created %d, want 2", resp.ChunksCreated)
	}
	if resp.DocumentID == "" {
		t.Fatal("expected a document ID")
	}
	if resp.Filename != "report.txt" {
		t.Fatalf("filename %q", resp.Filename)
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	server, _ := newTestServer(t, &stubPipeline{chunks: 2})

	body, contentType := multipartBody(t, "image.png", "binary")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestUploadIndexingFailure(t *testing.T) {
	server, _ := newTestServer(t, &stubPipeline{ingestErr: errors.New("embedder unreachable")})

	body, contentType := multipartBody(t, "report.txt", "words")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp.Error, "embedder unreachable") {
		t.Fatalf("error %q does not describe the failure", resp.Error)
	}
}

func TestQueryEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &stubPipeline{
		answer: rag.Answer{Answer: "42", Sources: []string{"guide.pdf"}},
	})

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"meaning of life?"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "42" {
		t.Fatalf("answer %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "guide.pdf" {
		t.Fatalf("sources %v", resp.Sources)
	}
	if resp.Confidence != nil {
		t.Fatalf("confidence %v, want null", *resp.Confidence)
	}
}

func TestQueryRequiresQuestion(t *testing.T) {
	server, _ := newTestServer(t, &stubPipeline{})

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"  "}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestQueryFailureIsNon2xx(t *testing.T) {
	server, _ := newTestServer(t, &stubPipeline{queryErr: errors.New("llm down")})

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"q"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
}

func TestListDocuments(t *testing.T) {
	server, uploads := newTestServer(t, &stubPipeline{})
	if _, _, err := uploads.Save([]byte("content"), "a.txt"); err != nil {
		t.Fatalf("save: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var docs []documentInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &docs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(docs) != 1 || docs[0].Filename != "a.txt" {
		t.Fatalf("documents %+v", docs)
	}
}

func TestDeleteDocument(t *testing.T) {
	server, uploads := newTestServer(t, &stubPipeline{})
	docID, _, err := uploads.Save([]byte("content"), "a.txt")
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/documents/%s", docID), nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	count, err := uploads.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected file removed, %d remain", count)
	}
}

func TestDeleteUnknownDocumentIsNotFound(t *testing.T) {
	server, _ := newTestServer(t, &stubPipeline{})

	req := httptest.NewRequest(http.MethodDelete, "/documents/no-such-id", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestClearRemovesUploadsAndResets(t *testing.T) {
	pipeline := &stubPipeline{}
	server, uploads := newTestServer(t, pipeline)
	if _, _, err := uploads.Save([]byte("content"), "a.txt"); err != nil {
		t.Fatalf("save: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/clear", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if pipeline.resetCalls != 1 {
		t.Fatalf("reset called %d times, want 1", pipeline.resetCalls)
	}

	count, err := uploads.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected uploads cleared, %d remain", count)
	}
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, &stubPipeline{
		info: rag.SystemInfo{
			EmbeddingProvider:  "openai",
			VectorBackend:      "postgres",
			WebSearchAvailable: true,
			Records:            7,
			Dimension:          1536,
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.EmbeddingProvider != "openai" || resp.DocumentsCount != 7 {
		t.Fatalf("unexpected health payload: %+v", resp)
	}
	if !resp.WebSearchAvailable {
		t.Fatal("expected web search available")
	}
}
