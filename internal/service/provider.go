// Package service implements the provider operations: order submission,
// polling reconciliation, reference data and acknowledgments. It composes
// the Lab API adapter and the mapper; everything it returns is in the
// PIMS-neutral schema.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/antech-v6-engine/internal/antech"
	"github.com/antech-v6-engine/internal/cache"
	"github.com/antech-v6-engine/internal/domain"
	"github.com/antech-v6-engine/internal/flags"
	"github.com/antech-v6-engine/internal/mapper"
)

// ProviderName identifies this integration on the message bus and in queue
// names.
const ProviderName = "antech-v6"

const speciesCacheTTL = 5 * time.Minute

// API is the Lab adapter surface the service depends on.
type API interface {
	TestAuth(ctx context.Context, baseURL string, creds antech.UserCredentials) error
	GetOrderStatus(ctx context.Context, baseURL string, creds antech.UserCredentials, overrideAck bool) (*antech.OrderStatusResponse, error)
	GetResultStatus(ctx context.Context, baseURL string, creds antech.UserCredentials, query antech.ResultStatusQuery) (*antech.ResultStatusResponse, error)
	GetAllResults(ctx context.Context, baseURL string, creds antech.UserCredentials) ([]antech.Result, error)
	GetOrphanResults(ctx context.Context, baseURL string, creds antech.UserCredentials) ([]antech.Result, error)
	GetSpeciesAndBreeds(ctx context.Context, baseURL string, creds antech.UserCredentials) (*antech.SpeciesAndBreeds, error)
	GetTestGuide(ctx context.Context, baseURL string, creds antech.UserCredentials) (*antech.TestGuide, error)
	GetOrderTrf(ctx context.Context, baseURL string, creds antech.UserCredentials, clinicAccessionID string) (*antech.TRF, error)
	PlacePreOrder(ctx context.Context, baseURL string, creds antech.UserCredentials, preOrder *antech.PreOrder) (*antech.PreOrderPlacement, error)
	PlaceOrder(ctx context.Context, baseURL string, creds antech.UserCredentials, preOrder *antech.PreOrder) (*antech.PreOrderPlacement, error)
	AcknowledgeOrders(ctx context.Context, baseURL string, creds antech.UserCredentials, clinicAccessionIDs []string) error
	AcknowledgeResults(ctx context.Context, baseURL string, creds antech.UserCredentials, labAccessionIDs []string) error
}

// Provider implements the provider operations against the Antech V6 Lab.
type Provider struct {
	api     API
	mapper  *mapper.Mapper
	species cache.Store
	log     *logrus.Entry
}

// New creates the provider service. species caches the species/breed master
// briefly so species and breeds lists come from one fetch.
func New(api API, m *mapper.Mapper, species cache.Store, log *logrus.Entry) *Provider {
	if species == nil {
		species = cache.NewMemoryStore(64, speciesCacheTTL)
	}
	return &Provider{api: api, mapper: m, species: species, log: log}
}

// TestAuth checks the integration credentials. It reports failure in the
// result instead of returning an error so callers always get an answer.
func (p *Provider) TestAuth(ctx context.Context, data *domain.MessageData) *domain.TestAuthResult {
	err := p.api.TestAuth(ctx, data.ProviderConfiguration.BaseURL, credentials(data))
	if err != nil {
		p.log.WithError(err).WithField("integration_id", data.IntegrationID).Warn("credentials check failed")
		return &domain.TestAuthResult{Success: false, Message: err.Error()}
	}
	return &domain.TestAuthResult{Success: true}
}

// CreateOrder submits a new order. With autoSubmitOrder the order is placed
// directly; otherwise a pre-order is placed and the response carries the
// submission URL for completing it in the Lab UI.
func (p *Provider) CreateOrder(ctx context.Context, payload *domain.CreateOrderPayload, data *domain.MessageData) (*domain.OrderCreated, error) {
	preOrder, err := p.mapper.MapCreateOrderPayload(payload, data)
	if err != nil {
		return nil, err
	}

	baseURL := data.ProviderConfiguration.BaseURL
	creds := credentials(data)

	if data.IntegrationOptions.AutoSubmitOrder {
		if _, err := p.api.PlaceOrder(ctx, baseURL, creds, preOrder); err != nil {
			return nil, err
		}
		return p.mapper.MapOrderCreated(preOrder), nil
	}

	placement, err := p.api.PlacePreOrder(ctx, baseURL, creds, preOrder)
	if err != nil {
		return nil, err
	}
	return p.mapper.MapPreOrderCreated(preOrder, placement, data), nil
}

// CreateRequisitionID mints a clinic accession id without placing an order.
func (p *Provider) CreateRequisitionID(data *domain.MessageData) (string, error) {
	return mapper.GenerateClinicAccessionID(
		data.IntegrationOptions.ClinicID,
		data.ProviderConfiguration.PimsIdentifier,
		time.Now(),
	)
}

// GetBatchOrders reconciles pending order status against result status.
// Each order row is enriched with the patient, client and veterinarian from
// its result status rows, and with the requisition form unless one of its
// tests is configured as in-house.
func (p *Provider) GetBatchOrders(ctx context.Context, data *domain.MessageData) ([]domain.Order, error) {
	baseURL := data.ProviderConfiguration.BaseURL
	creds := credentials(data)

	status, err := p.api.GetOrderStatus(ctx, baseURL, creds, false)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(status.LabOrders))
	for i := range status.LabOrders {
		row := &status.LabOrders[i]
		order := p.mapper.MapOrderStatus(row)

		resultStatus, err := p.api.GetResultStatus(ctx, baseURL, creds, antech.ResultStatusQuery{
			ClinicAccessionID: row.ClinicAccessionID,
		})
		if err != nil {
			return nil, err
		}
		if len(resultStatus.LabResults) == 0 {
			p.log.WithFields(logrus.Fields{
				"integration_id": data.IntegrationID,
				"accession_id":   row.ClinicAccessionID,
			}).Warn("No result status for order, returning order as is")
		}
		for j := range resultStatus.LabResults {
			mergeOrder(order, p.mapper.MapResultStatus(&resultStatus.LabResults[j]))
		}

		if !p.skipTrf(row, data.ProviderConfiguration.IhdMnemonics) {
			if trf, _ := p.api.GetOrderTrf(ctx, baseURL, creds, row.ClinicAccessionID); trf != nil {
				order.Manifest = &domain.Manifest{
					ContentType: trf.ContentType,
					Data:        trf.Data,
					URI:         trf.URI,
				}
			}
		}

		orders = append(orders, *order)
	}
	return orders, nil
}

// GetBatchResults fetches and maps every unacknowledged result.
func (p *Provider) GetBatchResults(ctx context.Context, data *domain.MessageData) (*domain.BatchResults, error) {
	results, err := p.api.GetAllResults(ctx, data.ProviderConfiguration.BaseURL, credentials(data))
	if err != nil {
		return nil, err
	}
	return p.mapResults(results, data), nil
}

// GetOrphanResults fetches and maps results the Lab could not match to an
// order. Each mapped result carries a reconstructed inline order.
func (p *Provider) GetOrphanResults(ctx context.Context, data *domain.MessageData) (*domain.BatchResults, error) {
	results, err := p.api.GetOrphanResults(ctx, data.ProviderConfiguration.BaseURL, credentials(data))
	if err != nil {
		return nil, err
	}
	return p.mapResults(results, data), nil
}

// GetServices lists the orderable tests from the Lab test guide.
func (p *Provider) GetServices(ctx context.Context, data *domain.MessageData) ([]domain.Service, error) {
	guide, err := p.api.GetTestGuide(ctx, data.ProviderConfiguration.BaseURL, credentials(data))
	if err != nil {
		return nil, err
	}
	return p.mapper.MapTestGuide(guide), nil
}

// GetSexes lists the patient sexes the Lab accepts.
func (p *Provider) GetSexes(_ context.Context, _ *domain.MessageData) (*domain.ReferenceData[domain.Sex], error) {
	items := []domain.Sex{
		{Name: "MALE", Code: "M"},
		{Name: "FEMALE", Code: "F"},
		{Name: "MALE_CASTRATED", Code: "CM"},
		{Name: "FEMALE_SPRAYED", Code: "SF"},
		{Name: "UNKNOWN", Code: "U"},
	}
	return referenceData(items)
}

// GetDevices lists in-clinic devices. The Lab is a reference laboratory and
// reports none.
func (p *Provider) GetDevices(_ context.Context, _ *domain.MessageData) (*domain.ReferenceData[domain.Device], error) {
	return referenceData([]domain.Device{})
}

// GetSpecies lists the species from the Lab master data.
func (p *Provider) GetSpecies(ctx context.Context, data *domain.MessageData) (*domain.ReferenceData[domain.Species], error) {
	master, err := p.speciesAndBreeds(ctx, data)
	if err != nil {
		return nil, err
	}
	items := make([]domain.Species, 0, len(master.Value.Data))
	for _, entry := range master.Value.Data {
		items = append(items, domain.Species{
			Code: fmt.Sprintf("%d", entry.ID),
			Name: entry.Name,
		})
	}
	return referenceData(items)
}

// GetBreeds lists the breeds from the Lab master data, keyed to their
// species.
func (p *Provider) GetBreeds(ctx context.Context, data *domain.MessageData) (*domain.ReferenceData[domain.Breed], error) {
	master, err := p.speciesAndBreeds(ctx, data)
	if err != nil {
		return nil, err
	}
	var items []domain.Breed
	for _, entry := range master.Value.Data {
		for _, breed := range entry.Breed {
			items = append(items, domain.Breed{
				Code:    fmt.Sprintf("%d", breed.ID),
				Name:    breed.Name,
				Species: fmt.Sprintf("%d", entry.ID),
			})
		}
	}
	return referenceData(items)
}

// AcknowledgeOrders confirms that the given clinic accession ids were
// delivered downstream.
func (p *Provider) AcknowledgeOrders(ctx context.Context, payload *domain.IDsPayload, data *domain.MessageData) error {
	return p.api.AcknowledgeOrders(ctx, data.ProviderConfiguration.BaseURL, credentials(data), payload.IDs)
}

// AcknowledgeResults confirms that the given lab accession ids were
// delivered downstream.
func (p *Provider) AcknowledgeResults(ctx context.Context, payload *domain.IDsPayload, data *domain.MessageData) error {
	return p.api.AcknowledgeResults(ctx, data.ProviderConfiguration.BaseURL, credentials(data), payload.IDs)
}

// CancelOrder is not supported by the Lab.
func (p *Provider) CancelOrder(context.Context, *domain.IDsPayload, *domain.MessageData) error {
	return domain.NewNotSupportedError("cancelOrder")
}

// CancelOrderTest is not supported by the Lab.
func (p *Provider) CancelOrderTest(context.Context, *domain.IDsPayload, *domain.MessageData) error {
	return domain.NewNotSupportedError("cancelOrderTest")
}

func (p *Provider) mapResults(results []antech.Result, data *domain.MessageData) *domain.BatchResults {
	ctx := flags.Context{
		IntegrationID: data.IntegrationID,
		ClinicID:      data.IntegrationOptions.ClinicID,
	}
	mapped := make([]domain.Result, 0, len(results))
	for i := range results {
		mapped = append(mapped, *p.mapper.MapResult(&results[i], ctx))
	}
	return &domain.BatchResults{Results: mapped}
}

// skipTrf reports whether any of the order's tests is one of the configured
// in-house mnemonics, whose requisitions are printed at the device instead.
func (p *Provider) skipTrf(order *antech.LabOrderStatus, ihdMnemonics []string) bool {
	if len(ihdMnemonics) == 0 {
		return false
	}
	skip := make(map[string]struct{}, len(ihdMnemonics))
	for _, m := range ihdMnemonics {
		skip[m] = struct{}{}
	}
	for _, test := range order.LabTests {
		if _, ok := skip[test.Mnemonic]; ok {
			return true
		}
	}
	return false
}

// speciesAndBreeds fetches the species/breed master, served from a short
// lived cache so species and breeds lists share one Lab call.
func (p *Provider) speciesAndBreeds(ctx context.Context, data *domain.MessageData) (*antech.SpeciesAndBreeds, error) {
	key := "species:" + data.ProviderConfiguration.BaseURL + ":" + data.IntegrationOptions.ClinicID
	var cached antech.SpeciesAndBreeds
	if found, _ := p.species.Get(ctx, key, &cached); found {
		return &cached, nil
	}
	master, err := p.api.GetSpeciesAndBreeds(ctx, data.ProviderConfiguration.BaseURL, credentials(data))
	if err != nil {
		return nil, err
	}
	if err := p.species.Set(ctx, key, master, speciesCacheTTL); err != nil {
		p.log.WithError(err).Warn("failed to cache species master")
	}
	return master, nil
}

// mergeOrder overlays src's populated fields onto dst, shallowly.
func mergeOrder(dst, src *domain.Order) {
	if src.ExternalID != "" {
		dst.ExternalID = src.ExternalID
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	if src.Tests != nil {
		dst.Tests = src.Tests
	}
	if src.Patient != nil {
		dst.Patient = src.Patient
	}
	if src.Client != nil {
		dst.Client = src.Client
	}
	if src.Veterinarian != nil {
		dst.Veterinarian = src.Veterinarian
	}
	if src.Manifest != nil {
		dst.Manifest = src.Manifest
	}
}

// referenceData wraps items with a stable content hash so consumers can
// detect change without diffing.
func referenceData[T any](items []T) (*domain.ReferenceData[T], error) {
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to hash reference data: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return &domain.ReferenceData[T]{
		Items: items,
		Hash:  hex.EncodeToString(sum[:]),
	}, nil
}

func credentials(data *domain.MessageData) antech.UserCredentials {
	return antech.UserCredentials{
		UserName: data.IntegrationOptions.Username,
		Password: data.IntegrationOptions.Password,
		ClinicID: data.IntegrationOptions.ClinicID,
	}
}
