package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// lineWriter emits JSON with the spacing and escaping of Python's json.dumps
// defaults. Embedded payloads are re-walked token by token so object key
// order and number literals stay exactly as received.
type lineWriter struct {
	bytes.Buffer
}

func (w *lineWriter) str(s string) {
	w.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '"':
			w.WriteString(`\"`)
		case '\\':
			w.WriteString(`\\`)
		case '\n':
			w.WriteString(`\n`)
		case '\r':
			w.WriteString(`\r`)
		case '\t':
			w.WriteString(`\t`)
		case '\b':
			w.WriteString(`\b`)
		case '\f':
			w.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				w.WriteByte(byte(r))
			case r > 0xffff:
				r -= 0x10000
				w.u16(0xd800 | (r>>10)&0x3ff)
				w.u16(0xdc00 | r&0x3ff)
			default:
				w.u16(r)
			}
		}
	}
	w.WriteByte('"')
}

func (w *lineWriter) u16(r rune) {
	w.WriteString(`\u`)
	w.WriteByte(hexDigits[(r>>12)&0xf])
	w.WriteByte(hexDigits[(r>>8)&0xf])
	w.WriteByte(hexDigits[(r>>4)&0xf])
	w.WriteByte(hexDigits[r&0xf])
}

// element writes a frame element with the JSON type it arrived with.
func (w *lineWriter) element(name string, v Value) error {
	if err := w.value(json.RawMessage(v)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// value re-encodes an embedded JSON value. A nil value is written as null.
func (w *lineWriter) value(raw json.RawMessage) error {
	if len(raw) == 0 {
		w.WriteString("null")
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := w.token(dec); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after embedded value")
	}
	return nil
}

func (w *lineWriter) token(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case json.Delim:
		closing := byte(']')
		if v == '{' {
			closing = '}'
		}
		w.WriteByte(byte(v))
		for i := 0; dec.More(); i++ {
			if i > 0 {
				w.WriteString(", ")
			}
			if v == '{' {
				key, err := dec.Token()
				if err != nil {
					return err
				}
				w.str(key.(string))
				w.WriteString(": ")
			}
			if err := w.token(dec); err != nil {
				return err
			}
		}
		if _, err := dec.Token(); err != nil {
			return err
		}
		w.WriteByte(closing)
	case string:
		w.str(v)
	case json.Number:
		w.WriteString(v.String())
	case bool:
		w.WriteString(strconv.FormatBool(v))
	case nil:
		w.WriteString("null")
	default:
		return fmt.Errorf("unsupported JSON token %T", tok)
	}
	return nil
}

func (w *lineWriter) decoded(d Decoded) error {
	switch v := d.(type) {
	case *Call:
		w.WriteString(`{"direction": "from_cp", "messageTypeId": 2, "uniqueId": `)
		if err := w.element("uniqueId", v.UniqueID); err != nil {
			return err
		}
		w.WriteString(`, "action": `)
		if err := w.element("action", v.Action); err != nil {
			return err
		}
		w.WriteString(`, "payload": `)
		if err := w.value(v.Payload); err != nil {
			return fmt.Errorf("payload: %w", err)
		}
	case *CallResult:
		w.WriteString(`{"direction": "from_csms", "messageTypeId": 3, "uniqueId": `)
		if err := w.element("uniqueId", v.UniqueID); err != nil {
			return err
		}
		w.WriteString(`, "payload": `)
		if err := w.value(v.Payload); err != nil {
			return fmt.Errorf("payload: %w", err)
		}
	case *CallError:
		w.WriteString(`{"direction": "error", "messageTypeId": 4, "uniqueId": `)
		if err := w.element("uniqueId", v.UniqueID); err != nil {
			return err
		}
		w.WriteString(`, "errorCode": `)
		if err := w.element("errorCode", v.ErrorCode); err != nil {
			return err
		}
		w.WriteString(`, "errorDescription": `)
		if err := w.element("errorDescription", v.ErrorDescription); err != nil {
			return err
		}
		w.WriteString(`, "errorDetails": `)
		if err := w.value(v.ErrorDetails); err != nil {
			return fmt.Errorf("errorDetails: %w", err)
		}
	case *DecodeError:
		w.WriteString(`{"error": `)
		w.str(string(v.Kind))
		w.WriteString(`, "raw": `)
		w.str(v.Raw)
	default:
		return fmt.Errorf("unknown decoded type %T", d)
	}
	w.WriteByte('}')
	return nil
}
