// Package processor runs the polling jobs: pull pending orders and results
// from the Lab, publish them to the platform, then acknowledge them with the
// Lab. Acknowledgment happens strictly after a successful publish, so a crash
// in between re-delivers rather than drops.
package processor

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/antech-v6-engine/internal/bus"
	"github.com/antech-v6-engine/internal/domain"
)

// Service is the provider surface the processors drive.
type Service interface {
	GetBatchOrders(ctx context.Context, data *domain.MessageData) ([]domain.Order, error)
	GetBatchResults(ctx context.Context, data *domain.MessageData) (*domain.BatchResults, error)
	AcknowledgeOrders(ctx context.Context, payload *domain.IDsPayload, data *domain.MessageData) error
	AcknowledgeResults(ctx context.Context, payload *domain.IDsPayload, data *domain.MessageData) error
}

// ExternalOrders is the payload published for a polled orders batch.
type ExternalOrders struct {
	IntegrationID string         `json:"integrationId"`
	Orders        []domain.Order `json:"orders"`
}

// ExternalResults is the payload published for a polled results batch.
type ExternalResults struct {
	IntegrationID string          `json:"integrationId"`
	Results       []domain.Result `json:"results"`
}

// Processor executes the two polling jobs for one provider.
type Processor struct {
	service   Service
	publisher bus.Publisher
	log       *logrus.Entry
}

// New creates a processor bound to the provider service and the outbound bus.
func New(service Service, publisher bus.Publisher, log *logrus.Entry) *Processor {
	return &Processor{service: service, publisher: publisher, log: log}
}

// ProcessOrders runs one orders polling cycle for the integration. Errors are
// logged and swallowed; the next tick retries from the Lab's unacknowledged
// backlog.
func (p *Processor) ProcessOrders(ctx context.Context, integrationID string, data *domain.MessageData) {
	log := p.log.WithField("integration_id", integrationID)

	orders, err := p.service.GetBatchOrders(ctx, data)
	if err != nil {
		log.WithError(err).Error("Failed to fetch batch orders")
		return
	}
	if len(orders) == 0 {
		return
	}

	payload := ExternalOrders{IntegrationID: integrationID, Orders: orders}
	if err := p.publisher.Publish(ctx, bus.SubjectExternalOrders, payload); err != nil {
		log.WithError(err).Error("Failed to publish batch orders")
		return
	}

	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		if order.ExternalID != "" {
			ids = append(ids, order.ExternalID)
		}
	}
	if err := p.service.AcknowledgeOrders(ctx, &domain.IDsPayload{IDs: ids}, data); err != nil {
		log.WithError(err).Error("Failed to acknowledge batch orders")
		return
	}
	log.WithField("count", len(orders)).Info("Published batch orders")
}

// ProcessResults runs one results polling cycle for the integration. The
// batch goes out on both results subjects before the Lab accessions are
// acknowledged.
func (p *Processor) ProcessResults(ctx context.Context, integrationID string, data *domain.MessageData) {
	log := p.log.WithField("integration_id", integrationID)

	batch, err := p.service.GetBatchResults(ctx, data)
	if err != nil {
		log.WithError(err).Error("Failed to fetch batch results")
		return
	}
	if batch == nil || len(batch.Results) == 0 {
		return
	}

	payload := ExternalResults{IntegrationID: integrationID, Results: batch.Results}
	if err := p.publisher.Publish(ctx, bus.SubjectExternalOrderResults, payload); err != nil {
		log.WithError(err).Error("Failed to publish batch order results")
		return
	}
	if err := p.publisher.Publish(ctx, bus.SubjectExternalResults, payload); err != nil {
		log.WithError(err).Error("Failed to publish batch results")
		return
	}

	ids := make([]string, 0, len(batch.Results))
	for _, result := range batch.Results {
		if result.Accession != "" {
			ids = append(ids, result.Accession)
		}
	}
	if err := p.service.AcknowledgeResults(ctx, &domain.IDsPayload{IDs: ids}, data); err != nil {
		log.WithError(err).Error("Failed to acknowledge batch results")
		return
	}
	log.WithField("count", len(batch.Results)).Info("Published batch results")
}
