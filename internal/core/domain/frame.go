package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MessageType is the OCPP-J messageTypeId that opens every frame.
type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

// Direction labels written into the persisted record.
const (
	DirectionFromCP   = "from_cp"
	DirectionFromCSMS = "from_csms"
	DirectionError    = "error"
)

// ErrorKind classifies why a raw payload could not be decoded into a frame.
type ErrorKind string

const (
	ErrorInvalidJSON            ErrorKind = "invalid_json"
	ErrorInvalidFrameStructure  ErrorKind = "invalid_frame_structure"
	ErrorInvalidCallFrame       ErrorKind = "invalid_call_frame"
	ErrorInvalidCallResultFrame ErrorKind = "invalid_callresult_frame"
	ErrorUnknownMessageType     ErrorKind = "unknown_message_type"
)

// Valid reports whether k is one of the known decode error kinds.
func (k ErrorKind) Valid() bool {
	switch k {
	case ErrorInvalidJSON, ErrorInvalidFrameStructure, ErrorInvalidCallFrame,
		ErrorInvalidCallResultFrame, ErrorUnknownMessageType:
		return true
	}
	return false
}

// Decoded is the outcome of decoding one raw message. It is a closed set:
// *Call, *CallResult, *CallError and *DecodeError are the only implementations.
type Decoded interface {
	isDecoded()
}

// Value is a frame element kept as the JSON it arrived as. A uniqueId of 42
// and one of "42" are different values and are written back out unchanged.
// A nil Value is an absent element.
type Value json.RawMessage

// Text returns the Value holding the JSON string s.
func Text(s string) Value {
	w := &lineWriter{}
	w.str(s)
	return Value(w.Bytes())
}

// String renders v as text: strings are unquoted, null and absent are empty
// and anything else keeps its JSON spelling.
func (v Value) String() string {
	trimmed := strings.TrimSpace(string(v))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return s
		}
	}
	return trimmed
}

// IsNull reports whether v is absent or an explicit JSON null.
func (v Value) IsNull() bool {
	trimmed := strings.TrimSpace(string(v))
	return trimmed == "" || trimmed == "null"
}

// Call is a CALL frame: [2, uniqueId, action, payload].
type Call struct {
	UniqueID Value
	Action   Value
	Payload  json.RawMessage
}

// CallResult is a CALLRESULT frame: [3, uniqueId, payload].
type CallResult struct {
	UniqueID Value
	Payload  json.RawMessage
}

// CallError is a CALLERROR frame: [4, uniqueId, errorCode?, errorDescription?, errorDetails?].
// Missing and null trailing elements are nil.
type CallError struct {
	UniqueID         Value
	ErrorCode        Value
	ErrorDescription Value
	ErrorDetails     json.RawMessage
}

// DecodeError records a payload that is not a well-formed OCPP frame.
// UniqueID is set whenever the frame got far enough to expose one; it is
// not part of the persisted line.
type DecodeError struct {
	Kind     ErrorKind
	Raw      string
	UniqueID Value
}

func (*Call) isDecoded()        {}
func (*CallResult) isDecoded()  {}
func (*CallError) isDecoded()   {}
func (*DecodeError) isDecoded() {}

// MessageTypeOf returns the messageTypeId of a decoded frame. The second
// result is false for decode errors.
func MessageTypeOf(d Decoded) (MessageType, bool) {
	switch d.(type) {
	case *Call:
		return MessageTypeCall, true
	case *CallResult:
		return MessageTypeCallResult, true
	case *CallError:
		return MessageTypeCallError, true
	}
	return 0, false
}

// DirectionOf returns the persisted direction label, empty for decode errors.
func DirectionOf(d Decoded) string {
	switch d.(type) {
	case *Call:
		return DirectionFromCP
	case *CallResult:
		return DirectionFromCSMS
	case *CallError:
		return DirectionError
	}
	return ""
}

// UniqueIDOf returns the frame's uniqueId when one is known.
func UniqueIDOf(d Decoded) (string, bool) {
	switch v := d.(type) {
	case *Call:
		return v.UniqueID.String(), true
	case *CallResult:
		return v.UniqueID.String(), true
	case *CallError:
		return v.UniqueID.String(), true
	case *DecodeError:
		if v.UniqueID != nil {
			return v.UniqueID.String(), true
		}
	}
	return "", false
}

// ActionOf returns the action of a CALL, empty otherwise.
func ActionOf(d Decoded) string {
	if c, ok := d.(*Call); ok {
		return c.Action.String()
	}
	return ""
}

// PayloadOf returns the top-level payload of a CALL or CALLRESULT.
// CALLERROR details are deliberately not returned.
func PayloadOf(d Decoded) json.RawMessage {
	switch v := d.(type) {
	case *Call:
		return v.Payload
	case *CallResult:
		return v.Payload
	}
	return nil
}

// IsError reports whether d is a decode error or a CALLERROR frame.
func IsError(d Decoded) bool {
	switch d.(type) {
	case *CallError, *DecodeError:
		return true
	}
	return false
}

// PayloadObject unmarshals the payload of d when it is a JSON object.
// Numbers are kept as json.Number.
func PayloadObject(d Decoded) (map[string]any, bool) {
	payload := PayloadOf(d)
	if len(payload) == 0 {
		return nil, false
	}
	trimmed := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	return obj, true
}

// Element copies one frame element with surrounding whitespace removed.
// An explicit null is kept, so it is written back as null.
func Element(raw json.RawMessage) Value {
	return Value(bytes.TrimSpace(bytes.Clone(raw)))
}

// OptionalElement is Element for trailing CALLERROR elements, where both a
// missing element and an explicit null are absent.
func OptionalElement(raw json.RawMessage) Value {
	v := Element(raw)
	if v.IsNull() {
		return nil
	}
	return v
}
