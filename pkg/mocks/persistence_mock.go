package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
)

// MockWebhookRepository is a mock implementation of persistence.WebhookRepository interface.
type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) FindByPath(ctx context.Context, path string) (*models.Webhook, *models.Workflow, error) {
	args := m.Called(ctx, path)

	return webhookAndWorkflow(args)
}

func (m *MockWebhookRepository) FindByID(ctx context.Context, id string) (*models.Webhook, *models.Workflow, error) {
	args := m.Called(ctx, id)

	return webhookAndWorkflow(args)
}

func (m *MockWebhookRepository) Save(ctx context.Context, webhook *models.Webhook) error {
	args := m.Called(ctx, webhook)

	return args.Error(0)
}

func webhookAndWorkflow(args mock.Arguments) (*models.Webhook, *models.Workflow, error) {
	var (
		webhook  *models.Webhook
		workflow *models.Workflow
	)

	if args.Get(0) != nil {
		webhook = args.Get(0).(*models.Webhook)
	}

	if args.Get(1) != nil {
		workflow = args.Get(1).(*models.Workflow)
	}

	return webhook, workflow, args.Error(2)
}

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

// MockOutboundWebhookRepository is a mock implementation of persistence.OutboundWebhookRepository interface.
type MockOutboundWebhookRepository struct {
	mock.Mock
}

func (m *MockOutboundWebhookRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.OutboundWebhookConfig, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.OutboundWebhookConfig), args.Error(1)
}

func (m *MockOutboundWebhookRepository) GetByID(ctx context.Context, workflowID, id string) (*models.OutboundWebhookConfig, error) {
	args := m.Called(ctx, workflowID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.OutboundWebhookConfig), args.Error(1)
}

func (m *MockOutboundWebhookRepository) Save(ctx context.Context, config *models.OutboundWebhookConfig) error {
	args := m.Called(ctx, config)

	return args.Error(0)
}

func (m *MockOutboundWebhookRepository) Delete(ctx context.Context, workflowID, id string) error {
	args := m.Called(ctx, workflowID, id)

	return args.Error(0)
}

// MockDeliveryRepository is a mock implementation of persistence.DeliveryRepository interface.
type MockDeliveryRepository struct {
	mock.Mock
}

func (m *MockDeliveryRepository) Record(ctx context.Context, record *models.DeliveryRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockDeliveryRepository) ListByConfig(ctx context.Context, configID string, limit int) ([]*models.DeliveryRecord, error) {
	args := m.Called(ctx, configID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.DeliveryRecord), args.Error(1)
}

func (m *MockDeliveryRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)

	return args.Get(0).(int64), args.Error(1)
}

// MockSubscriptionRepository is a mock implementation of persistence.SubscriptionRepository interface.
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) ListByReference(ctx context.Context, referenceID string) ([]*models.Subscription, error) {
	args := m.Called(ctx, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Subscription), args.Error(1)
}

// MockUsageRepository is a mock implementation of persistence.UsageRepository interface.
type MockUsageRepository struct {
	mock.Mock
}

func (m *MockUsageRepository) CurrentPeriodCost(ctx context.Context, userID string) (float64, error) {
	args := m.Called(ctx, userID)

	return args.Get(0).(float64), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	WebhookRepo      *MockWebhookRepository
	WorkflowRepo     *MockWorkflowRepository
	OutboundRepo     *MockOutboundWebhookRepository
	DeliveryRepo     *MockDeliveryRepository
	SubscriptionRepo *MockSubscriptionRepository
	UsageRepo        *MockUsageRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		WebhookRepo:      &MockWebhookRepository{},
		WorkflowRepo:     &MockWorkflowRepository{},
		OutboundRepo:     &MockOutboundWebhookRepository{},
		DeliveryRepo:     &MockDeliveryRepository{},
		SubscriptionRepo: &MockSubscriptionRepository{},
		UsageRepo:        &MockUsageRepository{},
	}
}

//nolint:ireturn
func (m *MockPersistence) Webhooks() persistence.WebhookRepository {
	return m.WebhookRepo
}

//nolint:ireturn
func (m *MockPersistence) Workflows() persistence.WorkflowRepository {
	return m.WorkflowRepo
}

//nolint:ireturn
func (m *MockPersistence) OutboundWebhooks() persistence.OutboundWebhookRepository {
	return m.OutboundRepo
}

//nolint:ireturn
func (m *MockPersistence) Deliveries() persistence.DeliveryRepository {
	return m.DeliveryRepo
}

//nolint:ireturn
func (m *MockPersistence) Subscriptions() persistence.SubscriptionRepository {
	return m.SubscriptionRepo
}

//nolint:ireturn
func (m *MockPersistence) Usage() persistence.UsageRepository {
	return m.UsageRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
