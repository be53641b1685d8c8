package service_test

import (
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileService_UploadAndDownload(t *testing.T) {
	f := newFixture(t)
	sow := f.activeSOW(t, domain.EngagementFixedPrice)
	cr, err := f.ChangeRequests.Submit(f.ctx, f.client, sow.ID, changeRequest(domain.ImpactAnalysis{DevHours: float(16)}))
	require.NoError(t, err)

	file, err := f.Files.Upload(f.ctx, f.client, domain.FileOwnerChangeRequest, cr.ID, "mockups.txt", "text/plain", strings.NewReader("wireframes"))
	require.NoError(t, err)
	assert.Equal(t, "mockups.txt", file.Filename)
	assert.Equal(t, int64(len("wireframes")), file.Size)
	assert.Equal(t, cr.ID, file.OwnerID)

	files, err := f.Files.ListByOwner(f.ctx, f.sales, domain.FileOwnerChangeRequest, cr.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, file.ID, files[0].ID)

	reader, name, contentType, err := f.Files.Download(f.ctx, f.sales, file.ID)
	require.NoError(t, err)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "wireframes", string(body))
	assert.Equal(t, "mockups.txt", name)
	assert.Equal(t, "text/plain", contentType)
}

func TestFileService_ContractOwnerCoversSOWs(t *testing.T) {
	f := newFixture(t)
	sow := f.activeSOW(t, domain.EngagementRetainer)

	file, err := f.Files.Upload(f.ctx, f.sales, domain.FileOwnerContract, sow.ID, "signed.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, domain.FileOwnerContract, file.OwnerType)

	_, err = f.Files.Upload(f.ctx, f.sales, domain.FileOwnerContract, *sow.ParentID, "msa.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
}

func TestFileService_UploadRejects(t *testing.T) {
	f := newFixture(t)
	proposal := f.draftProposal(t, f.opportunity(t))

	t.Run("proposal attachments go through the proposal", func(t *testing.T) {
		_, err := f.Files.Upload(f.ctx, f.sales, domain.FileOwnerProposal, proposal.ID, "p.pdf", "application/pdf", strings.NewReader("x"))
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("unknown owner type", func(t *testing.T) {
		_, err := f.Files.Upload(f.ctx, f.sales, "invoice", uuid.New(), "p.pdf", "application/pdf", strings.NewReader("x"))
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("missing owner", func(t *testing.T) {
		_, err := f.Files.Upload(f.ctx, f.sales, domain.FileOwnerChangeRequest, uuid.New(), "p.pdf", "application/pdf", strings.NewReader("x"))
		assert.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.Files.Upload(f.ctx, domain.Actor{}, domain.FileOwnerChangeRequest, uuid.New(), "p.pdf", "application/pdf", strings.NewReader("x"))
		assert.ErrorIs(t, err, service.ErrUnauthorized)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, _, err := f.Files.Download(f.ctx, f.sales, uuid.New())
		assert.ErrorIs(t, err, service.ErrNotFound)
	})
}
