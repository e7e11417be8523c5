// Package ocpp decodes OCPP-J (OCPP 1.6 over JSON) message frames.
//
// A frame is a JSON array whose first element is the messageTypeId:
//
//	[2, uniqueId, action, payload]                                   CALL
//	[3, uniqueId, payload]                                           CALLRESULT
//	[4, uniqueId, errorCode, errorDescription, errorDetails]         CALLERROR
//
// Decode never fails: malformed input becomes a *domain.DecodeError that is
// recorded like any other frame.
package ocpp

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
)

// Decode turns one raw text message into its decoded form. It is pure and
// total.
func Decode(raw string) domain.Decoded {
	var frame []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		if !json.Valid([]byte(raw)) {
			return &domain.DecodeError{Kind: domain.ErrorInvalidJSON, Raw: raw}
		}
		// Valid JSON that is not an array.
		return &domain.DecodeError{Kind: domain.ErrorInvalidFrameStructure, Raw: raw}
	}
	if len(frame) < 2 {
		return &domain.DecodeError{Kind: domain.ErrorInvalidFrameStructure, Raw: raw}
	}

	uid := domain.Element(frame[1])
	fail := func(kind domain.ErrorKind) domain.Decoded {
		return &domain.DecodeError{Kind: kind, Raw: raw, UniqueID: uid}
	}

	mt, ok := messageType(frame[0])
	if !ok {
		return fail(domain.ErrorUnknownMessageType)
	}

	switch mt {
	case domain.MessageTypeCall:
		if len(frame) != 4 {
			return fail(domain.ErrorInvalidCallFrame)
		}
		return &domain.Call{
			UniqueID: uid,
			Action:   domain.Element(frame[2]),
			Payload:  compactOrNil(frame[3]),
		}
	case domain.MessageTypeCallResult:
		if len(frame) != 3 {
			return fail(domain.ErrorInvalidCallResultFrame)
		}
		return &domain.CallResult{UniqueID: uid, Payload: compactOrNil(frame[2])}
	case domain.MessageTypeCallError:
		ce := &domain.CallError{UniqueID: uid}
		if len(frame) > 2 {
			ce.ErrorCode = domain.OptionalElement(frame[2])
		}
		if len(frame) > 3 {
			ce.ErrorDescription = domain.OptionalElement(frame[3])
		}
		if len(frame) > 4 {
			ce.ErrorDetails = compactOrNil(frame[4])
		}
		return ce
	}
	return fail(domain.ErrorUnknownMessageType)
}

// messageType accepts any JSON number with an integral value, so 2 and 2.0
// are the same type id. Strings, booleans and null are rejected.
func messageType(raw json.RawMessage) (domain.MessageType, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return 0, false
	}
	n, ok := tok.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return domain.MessageType(f), true
}

// compactOrNil maps an explicit null to nil and otherwise returns a copy of
// the element with surrounding whitespace removed.
func compactOrNil(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), trimmed...)
}
