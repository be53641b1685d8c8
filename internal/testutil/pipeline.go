package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifications records delivered events instead of writing them
type Notifications struct {
	mu     sync.Mutex
	events []service.Event
}

func (n *Notifications) Notify(_ context.Context, event service.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// Events returns the recorded events of the given type
func (n *Notifications) Events(eventType domain.NotificationType) []service.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []service.Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Pipeline wires every pipeline service against a test database
type Pipeline struct {
	DB       *gorm.DB
	Machine  *service.StateMachine
	Notifier *Notifications

	PipelineRepo     *repository.PipelineRepository
	ContractRepo     *repository.ContractRepository
	CloseRequestRepo *repository.CloseRequestRepository
	ProposalRepo     *repository.ProposalRepository

	Contacts       *service.ContactService
	Opportunities  *service.OpportunityService
	Proposals      *service.ProposalService
	Contracts      *service.ContractService
	ChangeRequests *service.ChangeRequestService
	CloseRequests  *service.CloseRequestService
	Files          *service.FileService
	Notifications  *service.NotificationService
	Users          *service.UserService
	AuditLogs      *service.AuditLogService
}

// NewPipeline builds the services on a fresh database with local file storage
func NewPipeline(t *testing.T) *Pipeline {
	t.Helper()

	db := NewTestDB(t)
	logger := zap.NewNop()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	pipelineRepo := repository.NewPipelineRepository(db)
	contactRepo := repository.NewContactRepository(db)
	opportunityRepo := repository.NewOpportunityRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	contractRepo := repository.NewContractRepository(db)
	changeRequestRepo := repository.NewChangeRequestRepository(db)
	closeRequestRepo := repository.NewCloseRequestRepository(db)
	fileRepo := repository.NewFileRepository(db)
	userRepo := repository.NewUserRepository(db)

	machine := service.NewStateMachine()
	numbers := service.NewNumberSequenceService(repository.NewNumberSequenceRepository(db), logger)
	notifier := &Notifications{}
	files := service.NewFileService(fileRepo, pipelineRepo, store, logger)

	return &Pipeline{
		DB:       db,
		Machine:  machine,
		Notifier: notifier,

		PipelineRepo:     pipelineRepo,
		ContractRepo:     contractRepo,
		CloseRequestRepo: closeRequestRepo,
		ProposalRepo:     proposalRepo,

		Contacts:       service.NewContactService(pipelineRepo, contactRepo, opportunityRepo, numbers, machine, notifier, logger),
		Opportunities:  service.NewOpportunityService(pipelineRepo, opportunityRepo, proposalRepo, numbers, machine, logger),
		Proposals:      service.NewProposalService(pipelineRepo, proposalRepo, opportunityRepo, userRepo, files, machine, notifier, logger),
		Contracts:      service.NewContractService(pipelineRepo, contractRepo, opportunityRepo, closeRequestRepo, numbers, machine, logger),
		ChangeRequests: service.NewChangeRequestService(pipelineRepo, changeRequestRepo, contractRepo, numbers, machine, notifier, logger),
		CloseRequests:  service.NewCloseRequestService(pipelineRepo, closeRequestRepo, contractRepo, numbers, machine, notifier, logger),
		Files:          files,
		Notifications:  service.NewNotificationService(repository.NewNotificationRepository(db), logger),
		Users:          service.NewUserService(userRepo, logger),
		AuditLogs:      service.NewAuditLogService(repository.NewAuditLogRepository(db), logger),
	}
}
