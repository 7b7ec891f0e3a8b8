package antech

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/antech-v6-engine/internal/cache"
	"github.com/antech-v6-engine/internal/domain"
)

const (
	serviceTypeLabOrder  = "labOrder"
	serviceTypeLabResult = "labResult"

	testGuidePageSize = 2500
)

// AckRequest is the AckStatus request body. The labAccessionsIds key is what
// the Lab expects, misspelling included.
type AckRequest struct {
	ServiceType        string   `json:"serviceType"`
	ClinicID           string   `json:"clinicId"`
	ClinicAccessionIDs []string `json:"clinicAccessionIds,omitempty"`
	LabAccessionIDs    []string `json:"labAccessionsIds,omitempty"`
}

// ClientConfig tunes the Lab API adapter.
type ClientConfig struct {
	TokenTTL time.Duration
}

// Client is the typed Lab API adapter. Access tokens are cached per
// credential set and refreshed transparently; the login endpoint sits behind
// a circuit breaker so credential or upstream failures do not hammer it.
type Client struct {
	http     *HTTPClient
	tokens   cache.Store
	tokenTTL time.Duration
	log      *logrus.Entry

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient creates a Lab API adapter. tokens may be shared across engine
// instances (Redis) or in-process.
func NewClient(httpClient *HTTPClient, tokens cache.Store, cfg ClientConfig, log *logrus.Entry) *Client {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 50 * time.Minute
	}
	return &Client{
		http:     httpClient,
		tokens:   tokens,
		tokenTTL: ttl,
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breakerFor returns the circuit breaker guarding one Lab base URL.
func (c *Client) breakerFor(baseURL string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if breaker, ok := c.breakers[baseURL]; ok {
		return breaker
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        baseURL,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})
	c.breakers[baseURL] = breaker
	return breaker
}

// BreakerStates reports the current breaker state per Lab base URL.
func (c *Client) BreakerStates() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	states := make(map[string]string, len(c.breakers))
	for url, breaker := range c.breakers {
		states[url] = breaker.State().String()
	}
	return states
}

// Login authenticates against the Lab and returns a fresh access token.
func (c *Client) Login(ctx context.Context, baseURL string, creds UserCredentials) (*AccessToken, error) {
	result, err := c.breakerFor(baseURL).Execute(func() (interface{}, error) {
		var token AccessToken
		err := c.http.Post(ctx, RequestOptions{
			BaseURL: baseURL,
			Path:    EndpointLogin,
			Body:    creds,
		}, &token)
		if err != nil {
			return nil, err
		}
		return &token, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, domain.NewApiError("Lab login unavailable (circuit breaker open)", domain.StatusTransportError, err, nil)
		}
		return nil, err
	}
	return result.(*AccessToken), nil
}

// TestAuth verifies that a credential set can authenticate.
func (c *Client) TestAuth(ctx context.Context, baseURL string, creds UserCredentials) error {
	_, err := c.Login(ctx, baseURL, creds)
	if err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	return nil
}

// GetOrderStatus fetches unacknowledged order status updates for the clinic.
// overrideAck true replays updates that were already acknowledged.
func (c *Client) GetOrderStatus(ctx context.Context, baseURL string, creds UserCredentials, overrideAck bool) (*OrderStatusResponse, error) {
	var out OrderStatusResponse
	query := url.Values{
		"serviceType": {serviceTypeLabOrder},
		"ClinicID":    {creds.ClinicID},
		"overrideAck": {strconv.FormatBool(overrideAck)},
	}
	if err := c.authenticatedGet(ctx, baseURL, creds, EndpointGetStatus, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetResultStatus fetches result status updates for the clinic. The query
// narrows the response to a single accession. overrideAck is always set so
// status rows survive until the matching results are acknowledged.
func (c *Client) GetResultStatus(ctx context.Context, baseURL string, creds UserCredentials, query ResultStatusQuery) (*ResultStatusResponse, error) {
	var out ResultStatusResponse
	params := url.Values{
		"serviceType": {serviceTypeLabResult},
		"ClinicID":    {creds.ClinicID},
		"overrideAck": {"true"},
	}
	if query.ClinicAccessionID != "" {
		params.Set("ClinicAccessionID", query.ClinicAccessionID)
	}
	if err := c.authenticatedGet(ctx, baseURL, creds, EndpointGetStatus, params, &out); err != nil {
		return nil, err
	}
	return out.normalized(), nil
}

// GetAllResults fetches every unacknowledged result for the clinic.
func (c *Client) GetAllResults(ctx context.Context, baseURL string, creds UserCredentials) ([]Result, error) {
	var out []Result
	if err := c.authenticatedGet(ctx, baseURL, creds, EndpointGetAllResults, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrphanResults fetches results the Lab could not match to a clinic
// accession.
func (c *Client) GetOrphanResults(ctx context.Context, baseURL string, creds UserCredentials) ([]Result, error) {
	var out []Result
	if err := c.authenticatedGet(ctx, baseURL, creds, EndpointGetOrphanResults, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSpeciesAndBreeds fetches the species/breed master list for the clinic.
func (c *Client) GetSpeciesAndBreeds(ctx context.Context, baseURL string, creds UserCredentials) (*SpeciesAndBreeds, error) {
	var out SpeciesAndBreeds
	query := url.Values{"ClinicID": {creds.ClinicID}}
	if err := c.authenticatedGet(ctx, baseURL, creds, EndpointGetSpeciesBreeds, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTestGuide fetches the orderable test directory. This endpoint takes the
// token and user id as query parameters instead of a header.
func (c *Client) GetTestGuide(ctx context.Context, baseURL string, creds UserCredentials) (*TestGuide, error) {
	token, err := c.authenticate(ctx, baseURL, creds)
	if err != nil {
		return nil, err
	}
	var userID string
	if token.UserInfo != nil {
		userID = strconv.FormatInt(token.UserInfo.ID, 10)
	}
	var out TestGuide
	err = c.http.Get(ctx, RequestOptions{
		BaseURL: baseURL,
		Path:    EndpointGetTestGuide,
		Query: url.Values{
			"accesstoken": {token.Token},
			"userId":      {userID},
			"pageSize":    {strconv.Itoa(testGuidePageSize)},
		},
	}, &out)
	if err != nil {
		c.dropTokenOnAuthFailure(ctx, baseURL, creds, err)
		return nil, err
	}
	return &out, nil
}

// GetOrderTrf fetches the Test Requisition Form PDF for an accession and
// returns it base64 encoded. A missing or failed TRF is reported as nil, not
// an error; orders ship without a manifest rather than stall.
func (c *Client) GetOrderTrf(ctx context.Context, baseURL string, creds UserCredentials, clinicAccessionID string) (*TRF, error) {
	token, err := c.authenticate(ctx, baseURL, creds)
	if err != nil {
		c.log.WithError(err).WithField("clinicAccessionId", clinicAccessionID).Warn("skipping TRF fetch, authentication failed")
		return nil, nil
	}
	data, contentType, err := c.http.GetBinary(ctx, RequestOptions{
		BaseURL:    baseURL,
		Path:       EndpointGetOrderTrf,
		PathSuffix: "/" + url.PathEscape(clinicAccessionID),
		Headers:    map[string]string{"accessToken": token.Token},
	})
	if err != nil {
		c.dropTokenOnAuthFailure(ctx, baseURL, creds, err)
		c.log.WithError(err).WithField("clinicAccessionId", clinicAccessionID).Warn("failed to fetch order TRF")
		return nil, nil
	}
	if contentType == "" {
		contentType = "application/pdf"
	}
	return &TRF{
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(data),
		URI:         baseURL + EndpointGetOrderTrf + "/" + url.PathEscape(clinicAccessionID),
	}, nil
}

// PlacePreOrder submits an order draft that waits for completion in the Lab
// UI. The returned placement carries the token used, so callers can build
// the submission URL.
func (c *Client) PlacePreOrder(ctx context.Context, baseURL string, creds UserCredentials, preOrder *PreOrder) (*PreOrderPlacement, error) {
	token, err := c.authenticate(ctx, baseURL, creds)
	if err != nil {
		return nil, err
	}
	var out PreOrderPlacement
	if err := c.authenticatedPost(ctx, baseURL, creds, EndpointPlacePreOrder, preOrder, &out); err != nil {
		return nil, fmt.Errorf("failed to place pre-order: %w", err)
	}
	out.Token = token.Token
	return &out, nil
}

// PlaceOrder submits a complete order directly.
func (c *Client) PlaceOrder(ctx context.Context, baseURL string, creds UserCredentials, preOrder *PreOrder) (*PreOrderPlacement, error) {
	var out PreOrderPlacement
	if err := c.authenticatedPost(ctx, baseURL, creds, EndpointPlaceOrder, preOrder, &out); err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}
	return &out, nil
}

// AcknowledgeOrders marks order status updates as consumed so the Lab stops
// returning them. Duplicate ids are collapsed before sending.
func (c *Client) AcknowledgeOrders(ctx context.Context, baseURL string, creds UserCredentials, clinicAccessionIDs []string) error {
	ids := dedupe(clinicAccessionIDs)
	if len(ids) == 0 {
		return nil
	}
	return c.authenticatedPost(ctx, baseURL, creds, EndpointAcknowledgeStatus, AckRequest{
		ServiceType:        serviceTypeLabOrder,
		ClinicID:           creds.ClinicID,
		ClinicAccessionIDs: ids,
	}, nil)
}

// AcknowledgeResults marks results as consumed. Duplicate ids are collapsed
// before sending.
func (c *Client) AcknowledgeResults(ctx context.Context, baseURL string, creds UserCredentials, labAccessionIDs []string) error {
	ids := dedupe(labAccessionIDs)
	if len(ids) == 0 {
		return nil
	}
	return c.authenticatedPost(ctx, baseURL, creds, EndpointAcknowledgeStatus, AckRequest{
		ServiceType:     serviceTypeLabResult,
		ClinicID:        creds.ClinicID,
		LabAccessionIDs: ids,
	}, nil)
}

func (c *Client) authenticatedGet(ctx context.Context, baseURL string, creds UserCredentials, endpoint string, query url.Values, out interface{}) error {
	token, err := c.authenticate(ctx, baseURL, creds)
	if err != nil {
		return err
	}
	err = c.http.Get(ctx, RequestOptions{
		BaseURL: baseURL,
		Path:    endpoint,
		Query:   query,
		Headers: map[string]string{"accessToken": token.Token},
	}, out)
	if err != nil {
		c.dropTokenOnAuthFailure(ctx, baseURL, creds, err)
	}
	return err
}

func (c *Client) authenticatedPost(ctx context.Context, baseURL string, creds UserCredentials, endpoint string, body interface{}, out interface{}) error {
	token, err := c.authenticate(ctx, baseURL, creds)
	if err != nil {
		return err
	}
	err = c.http.Post(ctx, RequestOptions{
		BaseURL: baseURL,
		Path:    endpoint,
		Headers: map[string]string{"accessToken": token.Token},
		Body:    body,
	}, out)
	if err != nil {
		c.dropTokenOnAuthFailure(ctx, baseURL, creds, err)
	}
	return err
}

// authenticate returns a cached access token for the credential set, logging
// in when none is cached.
func (c *Client) authenticate(ctx context.Context, baseURL string, creds UserCredentials) (*AccessToken, error) {
	key := tokenKey(baseURL, creds)
	var cached AccessToken
	if found, _ := c.tokens.Get(ctx, key, &cached); found && cached.Token != "" {
		return &cached, nil
	}
	token, err := c.Login(ctx, baseURL, creds)
	if err != nil {
		return nil, err
	}
	if err := c.tokens.Set(ctx, key, token, c.tokenTTL); err != nil {
		c.log.WithError(err).Warn("failed to cache access token")
	}
	return token, nil
}

// dropTokenOnAuthFailure evicts the cached token when the Lab rejected it,
// so the next call re-authenticates.
func (c *Client) dropTokenOnAuthFailure(ctx context.Context, baseURL string, creds UserCredentials, err error) {
	var apiErr *domain.ApiError
	if !domain.AsApiError(err, &apiErr) {
		return
	}
	if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
		if delErr := c.tokens.Delete(ctx, tokenKey(baseURL, creds)); delErr != nil {
			c.log.WithError(delErr).Warn("failed to evict access token")
		}
	}
}

func tokenKey(baseURL string, creds UserCredentials) string {
	sum := sha256.Sum256([]byte(baseURL + "|" + creds.ClinicID + "|" + creds.UserName))
	return fmt.Sprintf("antech:token:%x", sum[:8])
}

// normalized guards against a nil LabResults list so callers can range
// without checking.
func (r *ResultStatusResponse) normalized() *ResultStatusResponse {
	if r.LabResults == nil {
		r.LabResults = []LabResultStatus{}
	}
	return r
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
