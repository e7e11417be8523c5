package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrNotRecord is returned by ParseLine for lines that are valid JSON but do
// not have the persisted record shape.
var ErrNotRecord = errors.New("not an event record")

// EventRecord is one observed inbound message. It is created once at capture
// time and never mutated afterwards.
type EventRecord struct {
	Timestamp     time.Time
	ChargePointID string
	Raw           string
	Decoded       Decoded
}

// MarshalLine encodes the record in the log line format, without the
// trailing newline. The layout follows Python's json.dumps defaults so logs
// written by either tool read the same: ", " and ": " separators, ASCII-only
// strings.
func (r *EventRecord) MarshalLine() ([]byte, error) {
	if r.Decoded == nil {
		return nil, fmt.Errorf("marshal record: decoded frame is nil")
	}
	w := &lineWriter{}
	w.WriteString(`{"timestamp": `)
	w.str(FormatTimestamp(r.Timestamp))
	w.WriteString(`, "charge_point_id": `)
	w.str(r.ChargePointID)
	w.WriteString(`, "raw": `)
	w.str(r.Raw)
	w.WriteString(`, "decoded": `)
	if err := w.decoded(r.Decoded); err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	w.WriteByte('}')
	return w.Bytes(), nil
}

// MarshalDecoded encodes a decoded frame alone, in the same format used for
// the "decoded" member of a log line.
func MarshalDecoded(d Decoded) ([]byte, error) {
	w := &lineWriter{}
	if err := w.decoded(d); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// MarshalJSON implements json.Marshaler using the log line format.
func (r EventRecord) MarshalJSON() ([]byte, error) {
	return r.MarshalLine()
}

// UnmarshalJSON implements json.Unmarshaler using ParseLine.
func (r *EventRecord) UnmarshalJSON(data []byte) error {
	rec, err := ParseLine(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// FormatTimestamp renders t the way Python's datetime.isoformat does for an
// aware UTC instant: microsecond precision, omitted when zero.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	s := t.Format("2006-01-02T15:04:05")
	if us := t.Nanosecond() / 1000; us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s + "+00:00"
}

type recordLine struct {
	Timestamp     *string                    `json:"timestamp"`
	ChargePointID *string                    `json:"charge_point_id"`
	Raw           *string                    `json:"raw"`
	Decoded       map[string]json.RawMessage `json:"decoded"`
}

// ParseLine decodes one log line. Lines that are not JSON return the JSON
// error; lines that are JSON but not record-shaped wrap ErrNotRecord.
func ParseLine(line []byte) (EventRecord, error) {
	var rl recordLine
	if err := json.Unmarshal(line, &rl); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return EventRecord{}, fmt.Errorf("%w: %s", ErrNotRecord, typeErr.Field)
		}
		return EventRecord{}, err
	}
	if rl.Timestamp == nil || rl.ChargePointID == nil || rl.Raw == nil || rl.Decoded == nil {
		return EventRecord{}, fmt.Errorf("%w: missing field", ErrNotRecord)
	}
	ts, err := time.Parse(time.RFC3339Nano, *rl.Timestamp)
	if err != nil {
		return EventRecord{}, fmt.Errorf("%w: timestamp: %v", ErrNotRecord, err)
	}
	decoded, err := decodedFromFields(rl.Decoded)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		Timestamp:     ts.UTC(),
		ChargePointID: *rl.ChargePointID,
		Raw:           *rl.Raw,
		Decoded:       decoded,
	}, nil
}

func decodedFromFields(f map[string]json.RawMessage) (Decoded, error) {
	if kind := Value(f["error"]).String(); kind != "" {
		de := &DecodeError{Kind: ErrorKind(kind), Raw: Value(f["raw"]).String()}
		if !de.Kind.Valid() {
			return nil, fmt.Errorf("%w: unknown error kind %q", ErrNotRecord, kind)
		}
		de.UniqueID = uniqueIDFromRaw(de.Kind, de.Raw)
		return de, nil
	}

	var mt json.Number
	if err := json.Unmarshal(f["messageTypeId"], &mt); err != nil {
		return nil, fmt.Errorf("%w: messageTypeId", ErrNotRecord)
	}
	n, err := mt.Float64()
	if err != nil || n != math.Trunc(n) {
		return nil, fmt.Errorf("%w: messageTypeId", ErrNotRecord)
	}
	uid := Element(f["uniqueId"])

	switch MessageType(n) {
	case MessageTypeCall:
		return &Call{UniqueID: uid, Action: Element(f["action"]), Payload: present(f["payload"])}, nil
	case MessageTypeCallResult:
		return &CallResult{UniqueID: uid, Payload: present(f["payload"])}, nil
	case MessageTypeCallError:
		return &CallError{
			UniqueID:         uid,
			ErrorCode:        OptionalElement(f["errorCode"]),
			ErrorDescription: OptionalElement(f["errorDescription"]),
			ErrorDetails:     present(f["errorDetails"]),
		}, nil
	}
	return nil, fmt.Errorf("%w: messageTypeId %s", ErrNotRecord, mt)
}

// uniqueIDFromRaw recovers the in-memory uniqueId of a decode error, which
// the line format does not carry.
func uniqueIDFromRaw(kind ErrorKind, raw string) Value {
	if kind == ErrorInvalidJSON || kind == ErrorInvalidFrameStructure {
		return nil
	}
	var frame []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &frame); err != nil || len(frame) < 2 {
		return nil
	}
	return Element(frame[1])
}

// present maps a missing or null element to nil.
func present(raw json.RawMessage) json.RawMessage {
	if s := strings.TrimSpace(string(raw)); s == "" || s == "null" {
		return nil
	}
	return raw
}
