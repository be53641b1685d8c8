package handler

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

type FileHandler struct {
	fileService *service.FileService
	maxUploadMB int64
	logger      *zap.Logger
}

func NewFileHandler(fileService *service.FileService, maxUploadMB int64, logger *zap.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		maxUploadMB: maxUploadMB,
		logger:      logger,
	}
}

// readUpload parses a multipart body and returns its "file" part
func readUpload(w http.ResponseWriter, r *http.Request, maxUploadMB int64) (multipart.File, *multipart.FileHeader, bool) {
	limit := maxUploadMB * 1024 * 1024
	// Leave room for the multipart framing around the file
	r.Body = http.MaxBytesReader(w, r.Body, limit+1024*1024)

	if err := r.ParseMultipartForm(limit); err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large: maximum size is %dMB", maxUploadMB))
		return nil, nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid file upload: file field is required")
		return nil, nil, false
	}
	return file, header, true
}

// @Summary Upload file
// @Description Attach evidence or documents to a proposal, change request or contract
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Param ownerType formData string true "Owning entity type" Enums(proposal, change_request, contract)
// @Param ownerId formData string true "Owning entity ID"
// @Success 201 {object} domain.FileDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 413 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /files/upload [post]
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	file, header, ok := readUpload(w, r, h.maxUploadMB)
	if !ok {
		return
	}
	defer file.Close()

	ownerType := domain.FileOwnerType(r.FormValue("ownerType"))
	if !ownerType.IsValid() {
		respondWithError(w, http.StatusBadRequest, "Invalid ownerType: must be one of proposal, change_request, contract")
		return
	}
	ownerID, err := uuid.Parse(r.FormValue("ownerId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ownerId: must be a valid UUID")
		return
	}

	fileDTO, err := h.fileService.Upload(r.Context(), actor, ownerType, ownerID, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		respondServiceError(w, h.logger, err, "upload file")
		return
	}

	respondJSON(w, http.StatusCreated, fileDTO)
}

// @Summary List files for an entity
// @Tags Files
// @Produce json
// @Param ownerType query string true "Owning entity type" Enums(proposal, change_request, contract)
// @Param ownerId query string true "Owning entity ID"
// @Success 200 {array} domain.FileDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /files [get]
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	ownerType := domain.FileOwnerType(r.URL.Query().Get("ownerType"))
	if !ownerType.IsValid() {
		respondWithError(w, http.StatusBadRequest, "Invalid ownerType: must be one of proposal, change_request, contract")
		return
	}
	ownerID, err := uuid.Parse(r.URL.Query().Get("ownerId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ownerId: must be a valid UUID")
		return
	}

	files, err := h.fileService.ListByOwner(r.Context(), actor, ownerType, ownerID)
	if err != nil {
		respondServiceError(w, h.logger, err, "list files")
		return
	}

	respondJSON(w, http.StatusOK, files)
}

// @Summary Get file metadata
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} domain.FileDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /files/{id} [get]
func (h *FileHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "file")
	if !ok {
		return
	}

	fileDTO, err := h.fileService.GetByID(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get file")
		return
	}

	respondJSON(w, http.StatusOK, fileDTO)
}

// @Summary Download file
// @Tags Files
// @Produce application/octet-stream
// @Param id path string true "File ID"
// @Success 200
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /files/{id}/download [get]
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "file")
	if !ok {
		return
	}

	reader, filename, contentType, err := h.fileService.Download(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "download file")
		return
	}
	defer reader.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Type", contentType)

	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("file download interrupted", zap.String("file_id", id.String()), zap.Error(err))
	}
}
