package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"
)

// printer writes command results as an aligned table for terminals and as
// JSON otherwise.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer) *printer {
	asJSON := flagJSON
	if f, ok := w.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		asJSON = true
	}
	return &printer{w: w, json: asJSON}
}

// print writes v as JSON, or calls table with a tab-separated writer.
func (p *printer) print(v any, table func(w io.Writer)) error {
	if p.json || table == nil {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// message writes a plain line for terminals and {"message": ...} otherwise.
func (p *printer) message(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if p.json {
		return p.print(map[string]string{"message": msg}, nil)
	}
	_, err := fmt.Fprintln(p.w, msg)
	return err
}
