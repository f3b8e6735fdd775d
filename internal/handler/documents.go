package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/internal/middleware"
	"github.com/capitalize-ai/voicechat/internal/model"
	"github.com/capitalize-ai/voicechat/internal/service"
	"github.com/capitalize-ai/voicechat/pkg/logger"
)

// DefaultMaxDocumentSize caps a single uploaded document.
const DefaultMaxDocumentSize = 10 << 20

// IndexStatusSource reports the retrieval index status.
type IndexStatusSource interface {
	Status() model.IndexStatus
}

// UploadResponse is the response for a document upload.
type UploadResponse struct {
	Results   []model.UploadResult    `json:"results"`
	Documents []model.DocumentSummary `json:"documents"`
}

// DocumentHandler handles document endpoints.
type DocumentHandler struct {
	store   *service.DocumentStore
	index   IndexStatusSource
	maxSize int64
	logger  *logger.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(store *service.DocumentStore, index IndexStatusSource, maxSize int64, log *logger.Logger) *DocumentHandler {
	if maxSize <= 0 {
		maxSize = DefaultMaxDocumentSize
	}
	return &DocumentHandler{
		store:   store,
		index:   index,
		maxSize: maxSize,
		logger:  log,
	}
}

// Upload handles POST /api/v1/documents with one or more "files" parts.
// Only text content, including HTML, is accepted.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize*8)
	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	results := make([]model.UploadResult, 0, len(files))
	var docs []model.LoadedDocument
	var pending []int

	for _, fh := range files {
		doc, reason := h.readDocument(fh)
		if reason != "" {
			results = append(results, model.UploadResult{Name: fh.Filename, Skipped: reason})
			continue
		}
		pending = append(pending, len(results))
		results = append(results, model.UploadResult{Name: doc.Name})
		docs = append(docs, doc)
	}

	if len(docs) > 0 {
		added := h.store.Add(r.Context(), docs...)
		for i, res := range added {
			results[pending[i]] = res
		}
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Results:   results,
		Documents: h.store.List(),
	})
}

// readDocument returns the document or the reason it was rejected.
func (h *DocumentHandler) readDocument(fh *multipart.FileHeader) (model.LoadedDocument, string) {
	if err := middleware.ValidateDocumentName(fh.Filename); err != nil {
		return model.LoadedDocument{}, err.Error()
	}
	if fh.Size > h.maxSize {
		return model.LoadedDocument{}, "file too large"
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Warn("failed to open upload", zap.String("name", fh.Filename), zap.Error(err))
		return model.LoadedDocument{}, "unreadable file"
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxSize+1))
	if err != nil {
		h.logger.Warn("failed to read upload", zap.String("name", fh.Filename), zap.Error(err))
		return model.LoadedDocument{}, "unreadable file"
	}
	if int64(len(data)) > h.maxSize {
		return model.LoadedDocument{}, "file too large"
	}

	if mtype := mimetype.Detect(data); !isText(mtype) {
		return model.LoadedDocument{}, fmt.Sprintf("unsupported type %s", mtype.String())
	}
	if !utf8.Valid(data) {
		return model.LoadedDocument{}, "file is not valid UTF-8 text"
	}

	return model.LoadedDocument{Name: fh.Filename, Content: string(data)}, ""
}

// isText reports whether m is text/plain or one of its descendants, such as
// HTML, XML, JSON or CSV.
func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// List handles GET /api/v1/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

// Delete handles DELETE /api/v1/documents/{name}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document name")
		return
	}
	if !h.store.Remove(r.Context(), name) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/v1/documents/status
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.index.Status())
}
