package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"hpcgateway/internal/gateway"
	"hpcgateway/pkg/api"
)

func invalidInput(message string) error {
	return &gateway.Error{Kind: gateway.KindValidation, Code: gateway.CodeInvalidInput, Message: message}
}

// ListFiles handles GET /api/v1/file/list/{jobid}.
func (h *Handlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	files, err := h.files.List(r.Context(), id, r.PathValue("jobid"))
	if err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.ListFilesResponse{Files: toAPIFiles(files)})
}

// UploadFile handles POST /api/v1/file/upload/{jobid} with a multipart "file" part.
func (h *Handlers) UploadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.httpError(w, invalidInput(fmt.Sprintf("File exceeds %d bytes", h.maxUploadBytes)))
			return
		}
		h.httpError(w, invalidInput("Multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.httpError(w, invalidInput("Failed to read uploaded file"))
		return
	}

	if err := h.files.Upload(r.Context(), id, r.PathValue("jobid"), header.Filename, data); err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.MessageResponse{Message: "File uploaded"})
}

// DownloadFile handles GET /api/v1/file/download/{jobid}/{filename}.
func (h *Handlers) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	filename := r.PathValue("filename")
	data, err := h.files.Download(r.Context(), id, r.PathValue("jobid"), filename)
	if err != nil {
		h.httpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// DeleteFile handles DELETE /api/v1/file/delete/{jobid}/{filename}.
func (h *Handlers) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.files.Delete(r.Context(), id, r.PathValue("jobid"), r.PathValue("filename")); err != nil {
		h.httpError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.MessageResponse{Message: "File deleted"})
}
