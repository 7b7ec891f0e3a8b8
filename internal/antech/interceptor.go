package antech

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// ActivityRecord is one reportable Lab API exchange, tagged with the clinic
// accession ids it touched.
type ActivityRecord struct {
	Method       string   `json:"method"`
	Path         string   `json:"path"`
	StatusCode   int      `json:"statusCode"`
	AccessionIDs []string `json:"accessionIds,omitempty"`
}

// ActivitySink receives records the ActivityObserver decided to keep.
type ActivitySink func(ctx context.Context, rec ActivityRecord)

// ActivityObserver filters Lab API exchanges down to the ones worth
// reporting and extracts the accession ids involved. Credential and
// reference-data traffic is never reported, and empty polling responses are
// dropped to keep the activity stream proportional to actual work.
type ActivityObserver struct {
	log  *logrus.Entry
	sink ActivitySink
}

// NewActivityObserver creates an observer that forwards kept records to
// sink. A nil sink logs records instead.
func NewActivityObserver(log *logrus.Entry, sink ActivitySink) *ActivityObserver {
	o := &ActivityObserver{log: log, sink: sink}
	if o.sink == nil {
		o.sink = o.logRecord
	}
	return o
}

// Observe implements Observer.
func (o *ActivityObserver) Observe(ctx context.Context, ex Exchange) {
	if !Keep(ex) {
		return
	}
	o.sink(ctx, ActivityRecord{
		Method:       ex.Method,
		Path:         ex.Path,
		StatusCode:   ex.StatusCode,
		AccessionIDs: ExtractAccessionIDs(ex),
	})
}

func (o *ActivityObserver) logRecord(_ context.Context, rec ActivityRecord) {
	o.log.WithFields(logrus.Fields{
		"method":       rec.Method,
		"path":         rec.Path,
		"status":       rec.StatusCode,
		"accessionIds": rec.AccessionIDs,
	}).Info("Lab API activity")
}

// Keep reports whether an exchange belongs in the activity stream.
func Keep(ex Exchange) bool {
	switch ex.Path {
	case EndpointLogin, EndpointGetTestGuide, EndpointGetSpeciesBreeds:
		return false
	case EndpointGetStatus:
		if ex.StatusCode < 200 || ex.StatusCode >= 300 {
			return true
		}
		var body struct {
			LabOrders  *[]json.RawMessage `json:"LabOrders"`
			LabResults *[]json.RawMessage `json:"LabResults"`
		}
		if err := json.Unmarshal(ex.Response, &body); err != nil {
			return true
		}
		// Drop only when both lists are present and empty.
		if body.LabOrders != nil && len(*body.LabOrders) == 0 &&
			body.LabResults != nil && len(*body.LabResults) == 0 {
			return false
		}
		return true
	case EndpointGetAllResults:
		if ex.StatusCode < 200 || ex.StatusCode >= 300 {
			return true
		}
		var items []json.RawMessage
		if err := json.Unmarshal(ex.Response, &items); err != nil {
			return true
		}
		return len(items) > 0
	default:
		return true
	}
}

// ExtractAccessionIDs returns the clinic accession ids an exchange touched,
// pulled from the request or response depending on the endpoint.
func ExtractAccessionIDs(ex Exchange) []string {
	switch ex.Path {
	case EndpointPlacePreOrder, EndpointPlaceOrder:
		if order, ok := ex.RequestBody.(*PreOrder); ok && order.ClinicAccessionID != "" {
			return []string{order.ClinicAccessionID}
		}
		if order, ok := ex.RequestBody.(PreOrder); ok && order.ClinicAccessionID != "" {
			return []string{order.ClinicAccessionID}
		}
		return nil
	case EndpointGetStatus:
		var body struct {
			LabOrders []struct {
				ClinicAccessionID string `json:"ClinicAccessionID"`
			} `json:"LabOrders"`
			LabResults []struct {
				ClinicAccessionID string `json:"ClinicAccessionID"`
			} `json:"LabResults"`
		}
		if err := json.Unmarshal(ex.Response, &body); err != nil {
			return nil
		}
		var ids []string
		for _, o := range body.LabOrders {
			if o.ClinicAccessionID != "" {
				ids = append(ids, o.ClinicAccessionID)
			}
		}
		for _, r := range body.LabResults {
			if r.ClinicAccessionID != "" {
				ids = append(ids, r.ClinicAccessionID)
			}
		}
		return ids
	case EndpointAcknowledgeStatus:
		if ack, ok := ex.RequestBody.(*AckRequest); ok {
			return ack.ClinicAccessionIDs
		}
		if ack, ok := ex.RequestBody.(AckRequest); ok {
			return ack.ClinicAccessionIDs
		}
		return nil
	case EndpointGetAllResults:
		var items []struct {
			ClinicAccessionID string `json:"ClinicAccessionID"`
		}
		if err := json.Unmarshal(ex.Response, &items); err != nil {
			return nil
		}
		var ids []string
		for _, it := range items {
			if it.ClinicAccessionID != "" {
				ids = append(ids, it.ClinicAccessionID)
			}
		}
		return ids
	default:
		return nil
	}
}
