// Package query filters the event log for diagnostics.
package query

import (
	"encoding/json"
	"iter"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
)

// Filter is a conjunction of optional predicates over event records. Zero
// values are ignored, so the zero Filter matches everything.
type Filter struct {
	// ChargePointID keeps records from one connection label.
	ChargePointID string
	// Action keeps CALL frames with this action.
	Action string
	// OnlyErrors keeps CALLERROR frames and frames that failed to decode.
	OnlyErrors bool
	// ConnectorID keeps records whose payload object has this connectorId.
	ConnectorID *int
	// IDTag keeps records whose payload object has this idTag.
	IDTag *string
}

// Match reports whether rec satisfies every predicate in f. The connector
// and idTag predicates look only at the top-level CALL/CALLRESULT payload;
// records without an object payload never match them.
func (f Filter) Match(rec domain.EventRecord) bool {
	if f.ChargePointID != "" && rec.ChargePointID != f.ChargePointID {
		return false
	}
	if f.Action != "" && domain.ActionOf(rec.Decoded) != f.Action {
		return false
	}
	if f.OnlyErrors && !domain.IsError(rec.Decoded) {
		return false
	}
	if f.ConnectorID == nil && f.IDTag == nil {
		return true
	}

	payload, ok := domain.PayloadObject(rec.Decoded)
	if !ok {
		return false
	}
	if f.ConnectorID != nil && !numberEquals(payload["connectorId"], *f.ConnectorID) {
		return false
	}
	if f.IDTag != nil {
		tag, ok := payload["idTag"].(string)
		if !ok || tag != *f.IDTag {
			return false
		}
	}
	return true
}

// numberEquals compares JSON numbers by value, so 1 and 1.0 are equal.
func numberEquals(v any, want int) bool {
	n, ok := v.(json.Number)
	if !ok {
		return false
	}
	f, err := n.Float64()
	return err == nil && f == float64(want)
}

// Query lazily yields, in source order, the records that match f.
func Query(src iter.Seq[domain.EventRecord], f Filter) iter.Seq[domain.EventRecord] {
	return func(yield func(domain.EventRecord) bool) {
		for rec := range src {
			if f.Match(rec) && !yield(rec) {
				return
			}
		}
	}
}

// Limit stops seq after n records. n <= 0 means no limit.
func Limit(seq iter.Seq[domain.EventRecord], n int) iter.Seq[domain.EventRecord] {
	if n <= 0 {
		return seq
	}
	return func(yield func(domain.EventRecord) bool) {
		count := 0
		for rec := range seq {
			if !yield(rec) {
				return
			}
			count++
			if count >= n {
				return
			}
		}
	}
}
