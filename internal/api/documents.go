package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/aviary-ai/aviary/internal/extract"
	"github.com/aviary-ai/aviary/internal/storage"
)

const maxUploadSize = 50 << 20 // 50MB

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := parseIntQuery(r, "agent_id", 0)

		docs, err := deps.Store.ListDocuments(agentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.Document{}
		}
		respondJSON(w, map[string]any{"documents": docs})
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid document id")
			return
		}

		doc, err := deps.Store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}
		respondJSON(w, map[string]any{"document": doc})
	}
}

// handleUploadDocument accepts a multipart upload (fields: file, agent_id),
// stores the file under a unique name, records the document, and runs the
// ingestion pipeline. Ingestion failure is not fatal: the document stays
// uploaded and unprocessed, and the response still succeeds.
func handleUploadDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		agentID, err := strconv.ParseInt(r.FormValue("agent_id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "agent_id is required")
			return
		}
		if _, err := deps.Store.GetAgent(agentID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check agent: %v", err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer file.Close()

		filename := filepath.Base(header.Filename)
		fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
		if !extract.Supported(fileType) {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"unsupported file type %q, allowed types: pdf, docx, txt", fileType)
			return
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		if err := os.MkdirAll(deps.UploadDir, 0o755); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create upload dir: %v", err)
			return
		}
		storedPath := filepath.Join(deps.UploadDir, uuid.New().String()+"_"+filename)
		dst, err := os.Create(storedPath)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store file: %v", err)
			return
		}
		size, err := io.Copy(dst, file)
		dst.Close()
		if err != nil {
			os.Remove(storedPath)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store file: %v", err)
			return
		}

		doc, err := deps.Store.CreateDocument(storage.Document{
			AgentID:     agentID,
			Filename:    filename,
			FileType:    fileType,
			FileSize:    size,
			ContentType: contentType,
		})
		if err != nil {
			os.Remove(storedPath)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create document: %v", err)
			return
		}

		if err := deps.Ingestor.Process(r.Context(), doc.ID, storedPath, fileType); err != nil {
			slog.Error("document ingestion failed", "document_id", doc.ID, "error", err)
		}

		respondJSON(w, map[string]any{"document": doc})
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid document id")
			return
		}

		err = deps.Store.DeleteDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}
		respondJSON(w, map[string]any{"message": "document deleted"})
	}
}
