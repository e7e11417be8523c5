package capture

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
)

// Observer is notified of every recorded frame, in arrival order per
// connection. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(rec domain.EventRecord)
}

// ConnectionObserver is optionally implemented by observers that want
// connect and disconnect notifications.
type ConnectionObserver interface {
	Connected(chargePointID string)
	Disconnected(chargePointID string)
}

// Observers fans out to every member.
type Observers []Observer

func (obs Observers) Observe(rec domain.EventRecord) {
	for _, o := range obs {
		o.Observe(rec)
	}
}

func (obs Observers) Connected(chargePointID string) {
	for _, o := range obs {
		if co, ok := o.(ConnectionObserver); ok {
			co.Connected(chargePointID)
		}
	}
}

func (obs Observers) Disconnected(chargePointID string) {
	for _, o := range obs {
		if co, ok := o.(ConnectionObserver); ok {
			co.Disconnected(chargePointID)
		}
	}
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(rec domain.EventRecord)

func (f ObserverFunc) Observe(rec domain.EventRecord) { f(rec) }

const rule = "--------------------------------------------------"

// summaryKeys are the payload fields shown in the console summary.
var summaryKeys = []string{"status", "errorCode", "connectorId", "idTag", "meterStart", "meterStop"}

// Console prints a short summary of each frame for live troubleshooting.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	err *color.Color
	ok  *color.Color
	bye *color.Color
}

// NewConsole returns a console observer writing to w.
func NewConsole(w io.Writer, useColor bool) *Console {
	c := &Console{
		w:   w,
		err: color.New(color.FgRed, color.Bold),
		ok:  color.New(color.FgGreen),
		bye: color.New(color.FgYellow),
	}
	for _, col := range []*color.Color{c.err, c.ok, c.bye} {
		if useColor {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

func (c *Console) Connected(chargePointID string) {
	c.print(c.ok.Sprintf("[+] Charger connected: %s", chargePointID) + "\n")
}

func (c *Console) Disconnected(chargePointID string) {
	c.print(c.bye.Sprintf("[-] Charger disconnected: %s", chargePointID) + "\n")
}

func (c *Console) Observe(rec domain.EventRecord) {
	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Time (UTC): %s\n", domain.FormatTimestamp(rec.Timestamp))
	fmt.Fprintf(&b, "Charge Point: %s\n", rec.ChargePointID)

	if de, ok := rec.Decoded.(*domain.DecodeError); ok {
		fmt.Fprintln(&b, c.err.Sprint("!! ERROR DECODING FRAME !!"))
		fmt.Fprintf(&b, "error: %s\n", de.Kind)
		fmt.Fprintf(&b, "raw: %s\n", de.Raw)
		c.print(b.String())
		return
	}

	mt, _ := domain.MessageTypeOf(rec.Decoded)
	uid, _ := domain.UniqueIDOf(rec.Decoded)
	fmt.Fprintf(&b, "Type: %d\n", int(mt))
	fmt.Fprintf(&b, "UniqueId: %s\n", uid)
	if action := domain.ActionOf(rec.Decoded); action != "" {
		fmt.Fprintf(&b, "Action: %s\n", action)
	}
	if payload, ok := domain.PayloadObject(rec.Decoded); ok {
		for _, key := range summaryKeys {
			if v, ok := payload[key]; ok {
				fmt.Fprintf(&b, "%s: %s\n", key, text(v))
			}
		}
	}
	c.print(b.String())
}

func (c *Console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.w, s)
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
