package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antech-v6-engine/internal/bus"
	"github.com/antech-v6-engine/internal/domain"
)

type fakeService struct {
	orders     []domain.Order
	ordersErr  error
	results    []domain.Result
	resultsErr error

	ackedOrders  []string
	ackedResults []string
	ackErr       error
}

func (f *fakeService) GetBatchOrders(context.Context, *domain.MessageData) ([]domain.Order, error) {
	return f.orders, f.ordersErr
}

func (f *fakeService) GetBatchResults(context.Context, *domain.MessageData) (*domain.BatchResults, error) {
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	return &domain.BatchResults{Results: f.results}, nil
}

func (f *fakeService) AcknowledgeOrders(_ context.Context, payload *domain.IDsPayload, _ *domain.MessageData) error {
	f.ackedOrders = payload.IDs
	return f.ackErr
}

func (f *fakeService) AcknowledgeResults(_ context.Context, payload *domain.IDsPayload, _ *domain.MessageData) error {
	f.ackedResults = payload.IDs
	return f.ackErr
}

type fakePublisher struct {
	published []publication
	err       error
}

type publication struct {
	subject string
	data    interface{}
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publication{subject: subject, data: data})
	return nil
}

func newTestProcessor(t *testing.T, svc Service, pub bus.Publisher) *Processor {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(svc, pub, logger.WithField("test", t.Name()))
}

func testData() *domain.MessageData {
	return &domain.MessageData{IntegrationID: "int-1"}
}

func TestProcessOrders(t *testing.T) {
	svc := &fakeService{orders: []domain.Order{
		{ExternalID: "140039-VOY-1"},
		{ExternalID: "140039-VOY-2"},
	}}
	pub := &fakePublisher{}
	proc := newTestProcessor(t, svc, pub)

	proc.ProcessOrders(context.Background(), "int-1", testData())

	require.Len(t, pub.published, 1)
	assert.Equal(t, bus.SubjectExternalOrders, pub.published[0].subject)
	payload, ok := pub.published[0].data.(ExternalOrders)
	require.True(t, ok)
	assert.Equal(t, "int-1", payload.IntegrationID)
	assert.Len(t, payload.Orders, 2)

	assert.Equal(t, []string{"140039-VOY-1", "140039-VOY-2"}, svc.ackedOrders)
}

func TestProcessOrders_SkipsEmptyBatch(t *testing.T) {
	svc := &fakeService{}
	pub := &fakePublisher{}
	proc := newTestProcessor(t, svc, pub)

	proc.ProcessOrders(context.Background(), "int-1", testData())

	assert.Empty(t, pub.published)
	assert.Nil(t, svc.ackedOrders)
}

func TestProcessOrders_DoesNotAcknowledgeWhenPublishFails(t *testing.T) {
	svc := &fakeService{orders: []domain.Order{{ExternalID: "140039-VOY-1"}}}
	pub := &fakePublisher{err: errors.New("bus down")}
	proc := newTestProcessor(t, svc, pub)

	proc.ProcessOrders(context.Background(), "int-1", testData())

	assert.Nil(t, svc.ackedOrders)
}

func TestProcessOrders_SwallowsFetchErrors(t *testing.T) {
	svc := &fakeService{ordersErr: errors.New("lab down")}
	pub := &fakePublisher{}
	proc := newTestProcessor(t, svc, pub)

	proc.ProcessOrders(context.Background(), "int-1", testData())

	assert.Empty(t, pub.published)
}

func TestProcessResults(t *testing.T) {
	svc := &fakeService{results: []domain.Result{
		{ID: "1", Accession: "DLEA001"},
		{ID: "2", Accession: "DLEA002"},
	}}
	pub := &fakePublisher{}
	proc := newTestProcessor(t, svc, pub)

	proc.ProcessResults(context.Background(), "int-1", testData())

	// The batch goes out on both results subjects, order results first.
	require.Len(t, pub.published, 2)
	assert.Equal(t, bus.SubjectExternalOrderResults, pub.published[0].subject)
	assert.Equal(t, bus.SubjectExternalResults, pub.published[1].subject)

	assert.Equal(t, []string{"DLEA001", "DLEA002"}, svc.ackedResults)
}

func TestProcessResults_SkipsEmptyBatch(t *testing.T) {
	svc := &fakeService{}
	pub := &fakePublisher{}
	proc := newTestProcessor(t, svc, pub)

	proc.ProcessResults(context.Background(), "int-1", testData())

	assert.Empty(t, pub.published)
	assert.Nil(t, svc.ackedResults)
}

func TestProcessResults_DoesNotAcknowledgeWhenPublishFails(t *testing.T) {
	svc := &fakeService{results: []domain.Result{{ID: "1", Accession: "DLEA001"}}}
	pub := &fakePublisher{err: errors.New("bus down")}
	proc := newTestProcessor(t, svc, pub)

	proc.ProcessResults(context.Background(), "int-1", testData())

	assert.Nil(t, svc.ackedResults)
}
