package query

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
)

const rule = "--------------------------------------------------"

// Renderer writes matching records for a human or a pipe.
type Renderer struct {
	w       io.Writer
	details bool

	label *color.Color
	warn  *color.Color
	err   *color.Color
	dim   *color.Color
}

// NewRenderer returns a Renderer writing to w. details adds the CALLERROR
// description/details and the raw text of undecodable frames.
func NewRenderer(w io.Writer, useColor, details bool) *Renderer {
	r := &Renderer{
		w:       w,
		details: details,
		label:   color.New(color.FgCyan),
		warn:    color.New(color.FgYellow),
		err:     color.New(color.FgRed, color.Bold),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.label, r.warn, r.err, r.dim} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Block renders one record as a multi-line block.
func (r *Renderer) Block(rec domain.EventRecord) error {
	var b strings.Builder
	fmt.Fprintln(&b, r.dim.Sprint(rule))
	r.field(&b, "Time", domain.FormatTimestamp(rec.Timestamp))
	r.field(&b, "CP", rec.ChargePointID)

	if de, ok := rec.Decoded.(*domain.DecodeError); ok {
		r.err.Fprintf(&b, "Error: %s\n", de.Kind)
		if uid, ok := domain.UniqueIDOf(de); ok {
			r.field(&b, "UniqueId", uid)
		}
		if r.details {
			r.field(&b, "Raw", de.Raw)
		}
		_, err := io.WriteString(r.w, b.String())
		return err
	}

	mt, _ := domain.MessageTypeOf(rec.Decoded)
	fmt.Fprintf(&b, "%s %d  %s %s\n", r.label.Sprint("Type:"), int(mt),
		r.label.Sprint("Direction:"), domain.DirectionOf(rec.Decoded))
	if uid, ok := domain.UniqueIDOf(rec.Decoded); ok {
		r.field(&b, "UniqueId", uid)
	}
	if action := domain.ActionOf(rec.Decoded); action != "" {
		r.field(&b, "Action", action)
	}

	if payload, ok := domain.PayloadObject(rec.Decoded); ok {
		if status, ok := payload["status"]; ok && status != nil && status != "" {
			r.field(&b, "Status", fmt.Sprint(status))
		}
		if code, ok := payload["errorCode"]; ok && code != nil && code != "" {
			r.warn.Fprintf(&b, "ErrorCode: %v\n", code)
		}
	}

	if ce, ok := rec.Decoded.(*domain.CallError); ok {
		if ce.ErrorCode != nil {
			r.err.Fprintf(&b, "ErrorCode: %s\n", ce.ErrorCode.String())
		}
		if r.details {
			if ce.ErrorDescription != nil {
				r.field(&b, "ErrorDescription", ce.ErrorDescription.String())
			}
			if len(ce.ErrorDetails) > 0 {
				r.field(&b, "ErrorDetails", string(ce.ErrorDetails))
			}
		}
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *Renderer) field(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "%s %s\n", r.label.Sprint(name+":"), value)
}

// Line writes rec in the log line format followed by a newline.
func Line(w io.Writer, rec domain.EventRecord) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, '\n'))
	return err
}
