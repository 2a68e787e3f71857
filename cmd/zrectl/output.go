package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opiyodhiambo/zrebot/internal/alias"
)

type printer struct {
	json bool
	w    io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) printer {
	return printer{json: opts.Format == "json", w: w}
}

// print writes v as indented JSON, or calls text for the text format.
func (p printer) print(v any, text func(w io.Writer)) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(p.w)
	return nil
}

type recordView struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	SubmittedAt time.Time `json:"submitted_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewOf(rec alias.Record) recordView {
	return recordView{UserID: rec.UserID, Name: rec.Name, SubmittedAt: rec.SubmittedAt, CreatedAt: rec.CreatedAt}
}

func viewsOf(records []alias.Record) []recordView {
	out := make([]recordView, 0, len(records))
	for _, rec := range records {
		out = append(out, viewOf(rec))
	}
	return out
}

func writeRecord(w io.Writer, rec alias.Record) {
	fmt.Fprintf(w, "%s\t%s\t%s\n", rec.UserID, rec.Name, rec.SubmittedAt.UTC().Format(time.RFC3339))
}
