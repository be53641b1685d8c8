package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StoredBlob is an uploaded blob that has no file record yet
type StoredBlob struct {
	OwnerType   domain.FileOwnerType
	OwnerID     uuid.UUID
	Filename    string
	ContentType string
	Size        int64
	StoragePath string
}

// FileService handles attachments for proposals, change requests and contracts
type FileService struct {
	fileRepo     *repository.FileRepository
	pipelineRepo *repository.PipelineRepository
	storage      storage.Storage
	logger       *zap.Logger
}

// NewFileService creates a new FileService instance with all required dependencies
func NewFileService(
	fileRepo *repository.FileRepository,
	pipelineRepo *repository.PipelineRepository,
	storage storage.Storage,
	logger *zap.Logger,
) *FileService {
	return &FileService{
		fileRepo:     fileRepo,
		pipelineRepo: pipelineRepo,
		storage:      storage,
		logger:       logger,
	}
}

// Store writes the content to storage without recording it
func (s *FileService) Store(ctx context.Context, ownerType domain.FileOwnerType, ownerID uuid.UUID, filename, contentType string, data io.Reader) (*StoredBlob, error) {
	if filename == "" {
		return nil, newValidationError("file", "This field is required")
	}
	storagePath, size, err := s.storage.Upload(ctx, storage.OwnerKey(string(ownerType), ownerID), filename, contentType, data)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, newValidationError("file", err.Error())
		}
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}
	return &StoredBlob{
		OwnerType:   ownerType,
		OwnerID:     ownerID,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		StoragePath: storagePath,
	}, nil
}

// Record creates the file row for a stored blob inside the caller's transaction
func (s *FileService) Record(ctx context.Context, tx *gorm.DB, blob *StoredBlob, actor domain.Actor) (*domain.File, error) {
	file := &domain.File{
		Filename:     blob.Filename,
		ContentType:  blob.ContentType,
		Size:         blob.Size,
		StoragePath:  blob.StoragePath,
		OwnerType:    blob.OwnerType,
		OwnerID:      blob.OwnerID,
		UploadedByID: actor.ID,
	}
	if err := s.fileRepo.Create(ctx, tx, file); err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}
	return file, nil
}

// Discard removes a blob whose record was never committed (best effort)
func (s *FileService) Discard(ctx context.Context, blob *StoredBlob) {
	if err := s.storage.Delete(ctx, blob.StoragePath); err != nil {
		s.logger.Warn("failed to cleanup file from storage after DB error",
			zap.Error(err),
			zap.String("storagePath", blob.StoragePath),
		)
	}
}

// Remove deletes a file record and its blob (best effort)
func (s *FileService) Remove(ctx context.Context, id uuid.UUID) {
	file, err := s.fileRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("failed to load replaced file", zap.String("fileID", id.String()), zap.Error(err))
		return
	}
	if err := s.fileRepo.Delete(ctx, nil, id); err != nil {
		s.logger.Warn("failed to delete file record", zap.String("fileID", id.String()), zap.Error(err))
		return
	}
	if err := s.storage.Delete(ctx, file.StoragePath); err != nil {
		s.logger.Warn("failed to delete file from storage",
			zap.Error(err),
			zap.String("storagePath", file.StoragePath),
			zap.String("fileID", id.String()),
		)
	}
}

// Upload attaches a supporting document to a change request or contract
func (s *FileService) Upload(ctx context.Context, actor domain.Actor, ownerType domain.FileOwnerType, ownerID uuid.UUID, filename, contentType string, data io.Reader) (*domain.FileDTO, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	entity, err := fileOwnerEntity(ownerType)
	if err != nil {
		return nil, err
	}
	if entity == domain.EntityProposal {
		return nil, newValidationError("ownerType", "Proposal attachments are set on the proposal")
	}
	if err := s.ownerExists(ctx, entity, ownerID); err != nil {
		return nil, err
	}

	blob, err := s.Store(ctx, ownerType, ownerID, filename, contentType, data)
	if err != nil {
		return nil, err
	}
	file, err := s.Record(ctx, nil, blob, actor)
	if err != nil {
		s.Discard(ctx, blob)
		return nil, err
	}

	s.logger.Info("file uploaded",
		zap.String("fileID", file.ID.String()),
		zap.String("ownerType", string(ownerType)),
		zap.String("ownerID", ownerID.String()),
	)
	dto := mapper.ToFileDTO(file)
	return &dto, nil
}

// ListByOwner returns the files attached to an entity
func (s *FileService) ListByOwner(ctx context.Context, actor domain.Actor, ownerType domain.FileOwnerType, ownerID uuid.UUID) ([]domain.FileDTO, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	files, err := s.fileRepo.ListByOwner(ctx, ownerType, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	dtos := make([]domain.FileDTO, len(files))
	for i := range files {
		dtos[i] = mapper.ToFileDTO(&files[i])
	}
	return dtos, nil
}

// GetByID retrieves a file by its ID
func (s *FileService) GetByID(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.FileDTO, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	file, err := s.fileRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError("file", err)
	}
	dto := mapper.ToFileDTO(file)
	return &dto, nil
}

// Download retrieves a file's content for download
// Returns: reader, filename, content-type, error
func (s *FileService) Download(ctx context.Context, actor domain.Actor, id uuid.UUID) (io.ReadCloser, string, string, error) {
	if err := requireActor(actor); err != nil {
		return nil, "", "", err
	}
	file, err := s.fileRepo.GetByID(ctx, id)
	if err != nil {
		return nil, "", "", translateRepoError("file", err)
	}

	reader, err := s.storage.Download(ctx, file.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", "", fmt.Errorf("%w: file content", ErrNotFound)
		}
		return nil, "", "", fmt.Errorf("failed to download file: %w", err)
	}
	return reader, file.Filename, file.ContentType, nil
}

func (s *FileService) ownerExists(ctx context.Context, entity domain.EntityType, id uuid.UUID) error {
	err := s.pipelineRepo.Exists(ctx, entity, id)
	if entity == domain.EntityMSA && errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.pipelineRepo.Exists(ctx, domain.EntitySOW, id)
	}
	return translateRepoError(entity, err)
}

func fileOwnerEntity(ownerType domain.FileOwnerType) (domain.EntityType, error) {
	switch ownerType {
	case domain.FileOwnerProposal:
		return domain.EntityProposal, nil
	case domain.FileOwnerChangeRequest:
		return domain.EntityChangeRequest, nil
	case domain.FileOwnerContract:
		return domain.EntityMSA, nil
	}
	return "", newValidationError("ownerType", "Must be one of the allowed values")
}
