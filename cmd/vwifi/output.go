package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/srg/vwifi/internal/hoststack"
)

var validFormats = []string{"table", "json"}

// eventPrinter renders host notifications as a table or as JSON lines.
type eventPrinter struct {
	w      io.Writer
	format string

	good *color.Color
	bad  *color.Color
	dim  *color.Color
}

func newEventPrinter(w io.Writer, format string) (*eventPrinter, error) {
	if !slices.Contains(validFormats, format) {
		return nil, fmt.Errorf("invalid format '%s': must be one of %v", format, validFormats)
	}
	return &eventPrinter{
		w:      w,
		format: format,
		good:   color.New(color.FgGreen),
		bad:    color.New(color.FgRed),
		dim:    color.New(color.Faint),
	}, nil
}

// Events prints events oldest first.
func (p *eventPrinter) Events(events []hoststack.Event) error {
	if p.format == "json" {
		return p.JSON(events)
	}

	if len(events) == 0 {
		fmt.Fprintln(p.w, "No notifications")
		return nil
	}

	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tEVENT\tIFACE\tDETAILS")
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Seq, e.Type, orDash(e.Iface), p.details(e))
	}
	return w.Flush()
}

// JSON writes v as indented JSON.
func (p *eventPrinter) JSON(v any) error {
	encoder := json.NewEncoder(p.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (p *eventPrinter) details(e hoststack.Event) string {
	switch e.Type {
	case hoststack.EventInterfaceRegistered:
		return "type=" + e.IfType
	case hoststack.EventScanDone:
		if e.Aborted {
			return p.bad.Sprint("aborted")
		}
		return p.good.Sprint("completed")
	case hoststack.EventConnectResult:
		if e.Status == "success" {
			return p.good.Sprintf("success ssid=%q bssid=%s", e.SSID, e.BSSID)
		}
		return p.bad.Sprintf("timeout reason=%s ssid=%q", e.Reason, e.SSID)
	case hoststack.EventDisconnected:
		return fmt.Sprintf("reason=%d local=%t", e.Code, e.Local)
	case hoststack.EventAPStarted:
		return fmt.Sprintf("ssid=%q channel=%d", e.SSID, e.Channel)
	case hoststack.EventBSSInformed:
		return fmt.Sprintf("ssid=%q bssid=%s freq=%d signal=%d", e.SSID, e.BSSID, e.Freq, e.Signal)
	default:
		return p.dim.Sprint("-")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
