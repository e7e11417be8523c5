package ocpp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected domain.Decoded
	}{
		{
			name: "boot notification call",
			raw:  `[2,"123","BootNotification",{"Vendor":"ACME","Model":"X100"}]`,
			expected: &domain.Call{
				UniqueID: domain.Text("123"),
				Action:   domain.Text("BootNotification"),
				Payload:  json.RawMessage(`{"Vendor":"ACME","Model":"X100"}`),
			},
		},
		{
			name:     "call result",
			raw:      `[3,"123",{"status":"Accepted"}]`,
			expected: &domain.CallResult{UniqueID: domain.Text("123"), Payload: json.RawMessage(`{"status":"Accepted"}`)},
		},
		{
			name:     "call with whitespace and null payload",
			raw:      ` [ 2 , "9" , "Heartbeat" , null ] `,
			expected: &domain.Call{UniqueID: domain.Text("9"), Action: domain.Text("Heartbeat")},
		},
		{
			name:     "call with float type id",
			raw:      `[2.0,"1","Heartbeat",{}]`,
			expected: &domain.Call{UniqueID: domain.Text("1"), Action: domain.Text("Heartbeat"), Payload: json.RawMessage(`{}`)},
		},
		{
			name:     "call error minimal",
			raw:      `[4,"99"]`,
			expected: &domain.CallError{UniqueID: domain.Text("99")},
		},
		{
			name:     "call error with code",
			raw:      `[4,"99","GenericError"]`,
			expected: &domain.CallError{UniqueID: domain.Text("99"), ErrorCode: domain.Text("GenericError")},
		},
		{
			name: "call error with description",
			raw:  `[4,"99","GenericError","it broke"]`,
			expected: &domain.CallError{
				UniqueID:         domain.Text("99"),
				ErrorCode:        domain.Text("GenericError"),
				ErrorDescription: domain.Text("it broke"),
			},
		},
		{
			name: "call error with details",
			raw:  `[4,"99","GenericError","it broke",{"connectorId":1}]`,
			expected: &domain.CallError{
				UniqueID:         domain.Text("99"),
				ErrorCode:        domain.Text("GenericError"),
				ErrorDescription: domain.Text("it broke"),
				ErrorDetails:     json.RawMessage(`{"connectorId":1}`),
			},
		},
		{
			name: "call error ignores extra elements",
			raw:  `[4,"99","GenericError","",{},"extra"]`,
			expected: &domain.CallError{
				UniqueID:         domain.Text("99"),
				ErrorCode:        domain.Text("GenericError"),
				ErrorDescription: domain.Text(""),
				ErrorDetails:     json.RawMessage(`{}`),
			},
		},
		{
			name:     "not json",
			raw:      "not json",
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidJSON, Raw: "not json"},
		},
		{
			name:     "empty string",
			raw:      "",
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidJSON, Raw: ""},
		},
		{
			name:     "truncated array",
			raw:      `[2,"1","Heartbeat",{}`,
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidJSON, Raw: `[2,"1","Heartbeat",{}`},
		},
		{
			name:     "object",
			raw:      `{"messageTypeId":2}`,
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidFrameStructure, Raw: `{"messageTypeId":2}`},
		},
		{
			name:     "bare number",
			raw:      `2`,
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidFrameStructure, Raw: `2`},
		},
		{
			name:     "empty array",
			raw:      `[]`,
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidFrameStructure, Raw: `[]`},
		},
		{
			name:     "single element",
			raw:      `[2]`,
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidFrameStructure, Raw: `[2]`},
		},
		{
			name:     "short call",
			raw:      `[2,"1","Heartbeat"]`,
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidCallFrame, Raw: `[2,"1","Heartbeat"]`, UniqueID: domain.Text("1")},
		},
		{
			name:     "long call",
			raw:      `[2,"1","Heartbeat",{},{}]`,
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidCallFrame, Raw: `[2,"1","Heartbeat",{},{}]`, UniqueID: domain.Text("1")},
		},
		{
			name:     "short call result",
			raw:      `[3,"1"]`,
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidCallResultFrame, Raw: `[3,"1"]`, UniqueID: domain.Text("1")},
		},
		{
			name:     "long call result",
			raw:      `[3,"1",{},{}]`,
			expected: &domain.DecodeError{Kind: domain.ErrorInvalidCallResultFrame, Raw: `[3,"1",{},{}]`, UniqueID: domain.Text("1")},
		},
		{
			name:     "unknown type keeps unique id",
			raw:      `[5,"u-5",{}]`,
			expected: &domain.DecodeError{Kind: domain.ErrorUnknownMessageType, Raw: `[5,"u-5",{}]`, UniqueID: domain.Text("u-5")},
		},
		{
			name:     "string type id",
			raw:      `["2","1","Heartbeat",{}]`,
			expected: &domain.DecodeError{Kind: domain.ErrorUnknownMessageType, Raw: `["2","1","Heartbeat",{}]`, UniqueID: domain.Text("1")},
		},
		{
			name:     "fractional type id",
			raw:      `[2.5,"1","Heartbeat",{}]`,
			expected: &domain.DecodeError{Kind: domain.ErrorUnknownMessageType, Raw: `[2.5,"1","Heartbeat",{}]`, UniqueID: domain.Text("1")},
		},
		{
			name:     "null type id",
			raw:      `[null,"1"]`,
			expected: &domain.DecodeError{Kind: domain.ErrorUnknownMessageType, Raw: `[null,"1"]`, UniqueID: domain.Text("1")},
		},
		{
			name:     "huge type id",
			raw:      `[1e300,"1"]`,
			expected: &domain.DecodeError{Kind: domain.ErrorUnknownMessageType, Raw: `[1e300,"1"]`, UniqueID: domain.Text("1")},
		},
		{
			name:     "numeric unique id keeps its type",
			raw:      `[3,42,{}]`,
			expected: &domain.CallResult{UniqueID: domain.Value(`42`), Payload: json.RawMessage(`{}`)},
		},
		{
			name:     "null unique id and action",
			raw:      `[2,null,null,{}]`,
			expected: &domain.Call{UniqueID: domain.Value(`null`), Action: domain.Value(`null`), Payload: json.RawMessage(`{}`)},
		},
		{
			name: "call error with non-string code and description",
			raw:  `[4,"x",{"code":1},5]`,
			expected: &domain.CallError{
				UniqueID:         domain.Text("x"),
				ErrorCode:        domain.Value(`{"code":1}`),
				ErrorDescription: domain.Value(`5`),
			},
		},
		{
			name:     "call error null code is absent",
			raw:      `[4,"x",null]`,
			expected: &domain.CallError{UniqueID: domain.Text("x")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.raw)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Decode(%q) = %#v, want %#v", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestDecode_CallLengths(t *testing.T) {
	for n := 2; n <= 8; n++ {
		elems := []any{2, "uid", "Heartbeat", map[string]any{}, 1, 2, 3, 4}[:n]
		raw, err := json.Marshal(elems)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		got := Decode(string(raw))
		if n == 4 {
			if _, ok := got.(*domain.Call); !ok {
				t.Errorf("length %d: expected *domain.Call, got %T", n, got)
			}
			continue
		}
		de, ok := got.(*domain.DecodeError)
		if !ok || de.Kind != domain.ErrorInvalidCallFrame {
			t.Errorf("length %d: expected invalid_call_frame, got %#v", n, got)
		}
	}
}

func TestDecode_CallResultLengths(t *testing.T) {
	for n := 2; n <= 6; n++ {
		elems := []any{3, "uid", map[string]any{}, 1, 2, 3}[:n]
		raw, _ := json.Marshal(elems)
		got := Decode(string(raw))
		if n == 3 {
			if _, ok := got.(*domain.CallResult); !ok {
				t.Errorf("length %d: expected *domain.CallResult, got %T", n, got)
			}
			continue
		}
		de, ok := got.(*domain.DecodeError)
		if !ok || de.Kind != domain.ErrorInvalidCallResultFrame {
			t.Errorf("length %d: expected invalid_callresult_frame, got %#v", n, got)
		}
	}
}

func TestDecode_UnknownTypes(t *testing.T) {
	for _, mt := range []string{"0", "1", "5", "-2", "100", "true", `"x"`, "[]", "{}"} {
		raw := fmt.Sprintf(`[%s,"u"]`, mt)
		de, ok := Decode(raw).(*domain.DecodeError)
		if !ok || de.Kind != domain.ErrorUnknownMessageType {
			t.Errorf("Decode(%s): expected unknown_message_type, got %#v", raw, Decode(raw))
		}
	}
}

func TestDecode_Idempotent(t *testing.T) {
	inputs := []string{
		`[2,"1","Authorize",{"idTag":"ABC"}]`,
		`[3,"1",["a",1]]`,
		`[4,"1"]`,
		`nope`,
		`[7,"x"]`,
	}
	for _, raw := range inputs {
		first := Decode(raw)
		second := Decode(raw)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Decode(%q) not idempotent: %#v vs %#v", raw, first, second)
		}
	}
}

func TestDecode_PayloadIsCopied(t *testing.T) {
	raw := `[3,"1",{"a":1}]`
	got := Decode(raw).(*domain.CallResult)
	got.Payload[0] = '['
	again := Decode(raw).(*domain.CallResult)
	if string(again.Payload) != `{"a":1}` {
		t.Errorf("payload shares memory across decodes: %s", again.Payload)
	}
}

func TestDecode_MarshalsToLine(t *testing.T) {
	rec := domain.EventRecord{ChargePointID: "CP", Raw: `[2,"1","A",{"x":[1, 2]}]`}
	rec.Decoded = Decode(rec.Raw)
	line, err := rec.MarshalLine()
	if err != nil {
		t.Fatalf("MarshalLine() error = %v", err)
	}
	parsed, err := domain.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}
	call, ok := parsed.Decoded.(*domain.Call)
	if !ok {
		t.Fatalf("expected *domain.Call, got %T", parsed.Decoded)
	}
	if string(call.Payload) != `{"x": [1, 2]}` {
		t.Errorf("payload = %s", call.Payload)
	}
}

func TestDecode_LineKeepsElementTypes(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{
			raw:      `[2,42,"Heartbeat",{}]`,
			expected: `{"direction": "from_cp", "messageTypeId": 2, "uniqueId": 42, "action": "Heartbeat", "payload": {}}`,
		},
		{
			raw:      `[2,null,null,{}]`,
			expected: `{"direction": "from_cp", "messageTypeId": 2, "uniqueId": null, "action": null, "payload": {}}`,
		},
		{
			raw:      `[4,"x",{"code":1},5]`,
			expected: `{"direction": "error", "messageTypeId": 4, "uniqueId": "x", "errorCode": {"code": 1}, "errorDescription": 5, "errorDetails": null}`,
		},
	}
	for _, tt := range tests {
		got, err := domain.MarshalDecoded(Decode(tt.raw))
		if err != nil {
			t.Fatalf("MarshalDecoded(%s) error = %v", tt.raw, err)
		}
		if string(got) != tt.expected {
			t.Errorf("MarshalDecoded(%s) = %s, want %s", tt.raw, got, tt.expected)
		}
	}
}

func FuzzDecode(f *testing.F) {
	f.Add(`[2,"1","Heartbeat",{}]`)
	f.Add(`[4,"1","E","d",{}]`)
	f.Add(`[`)
	f.Fuzz(func(t *testing.T, raw string) {
		d := Decode(raw)
		if d == nil {
			t.Fatal("Decode returned nil")
		}
		rec := domain.EventRecord{Raw: raw, Decoded: d}
		if _, err := rec.MarshalLine(); err != nil {
			t.Fatalf("decoded frame cannot be persisted: %v", err)
		}
	})
}
