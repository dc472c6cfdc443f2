// Package extract pulls page text out of result PDFs and feeds it to the parser.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"resultzone/internal/util"

	"github.com/ledongthuc/pdf"
)

// Document is a source of per-page text. Pages are numbered from 1.
type Document interface {
	NumPages() int
	PageText(ctx context.Context, n int) (string, error)
}

type PDFDocument struct {
	r *pdf.Reader
	f *os.File
}

func OpenPDF(path string) (*PDFDocument, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &PDFDocument{r: r, f: f}, nil
}

func ReadPDF(data []byte) (*PDFDocument, error) {
	if !util.HasPDFMagic(data) {
		return nil, util.ErrNotPDF
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	return &PDFDocument{r: r}, nil
}

func (d *PDFDocument) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	return d.f.Close()
}

func (d *PDFDocument) NumPages() int {
	return d.r.NumPage()
}

// PageText returns the page's text runs joined by single spaces.
func (d *PDFDocument) PageText(ctx context.Context, n int) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n < 1 || n > d.r.NumPage() {
		return "", fmt.Errorf("page %d out of range 1..%d", n, d.r.NumPage())
	}
	// the pdf package panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("decode page %d: %v", n, r)
		}
	}()
	p := d.r.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	raw, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract page %d text: %w", n, err)
	}
	return JoinItems(strings.Fields(util.SanitizeText(raw))), nil
}

// JoinItems joins text fragments the way the page text is laid out for the
// parser: single spaces, empty fragments dropped.
func JoinItems(items []string) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		out = append(out, it)
	}
	return strings.Join(out, " ")
}
