package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"resultzone/internal/models"
	"resultzone/internal/resultparse"

	"golang.org/x/sync/errgroup"
)

const (
	// MaxConcurrentPages bounds how many pages are decoded at once.
	MaxConcurrentPages = 10

	// DocumentSeparator joins page texts in whole-document mode.
	DocumentSeparator = "\n\n"
)

type Mode string

const (
	ModePage     Mode = "page"
	ModeDocument Mode = "document"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePage:
		return ModePage, nil
	case ModeDocument:
		return ModeDocument, nil
	default:
		return "", fmt.Errorf("unsupported extract mode: %s", s)
	}
}

type Options struct {
	BatchSize int
	Mode      Mode
	// SkipEmpty drops records with no header and no students.
	SkipEmpty bool
}

type Result struct {
	Records   []models.InstituteRecord `json:"records"`
	Meta      models.DocumentMeta      `json:"meta"`
	PageCount int                      `json:"page_count"`
}

// ExtractPages reads every page of doc. Pages are processed in fixed batches
// of batchSize; batches run one after another and the pages inside a batch
// run concurrently. Any page failure aborts the extraction. texts[i] is page i+1.
func ExtractPages(ctx context.Context, doc Document, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		batchSize = MaxConcurrentPages
	}
	n := doc.NumPages()
	texts := make([]string, n)
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i // per-iteration copy (pre-Go 1.22 loop semantics)
			g.Go(func() error {
				text, err := doc.PageText(gctx, i+1)
				if err != nil {
					return fmt.Errorf("extract page %d: %w", i+1, err)
				}
				texts[i] = text
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("extract batch %d-%d: %w", start+1, end, err)
		}
	}
	return texts, nil
}

// HasText reports whether any page produced text. Scanned sheets without a
// text layer come back as all-empty pages.
func HasText(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}

// ParseTexts applies the parser per page or once over the joined document.
func ParseTexts(texts []string, opts Options) Result {
	full := strings.Join(texts, DocumentSeparator)
	res := Result{Meta: resultparse.ExtractMeta(full), PageCount: len(texts)}
	if opts.Mode == ModeDocument {
		res.Records = []models.InstituteRecord{resultparse.ParsePage(full, 0)}
	} else {
		res.Records = make([]models.InstituteRecord, 0, len(texts))
		for i, text := range texts {
			res.Records = append(res.Records, resultparse.ParsePage(text, i+1))
		}
	}
	if opts.SkipEmpty {
		kept := res.Records[:0]
		for _, rec := range res.Records {
			if !resultparse.Empty(rec) {
				kept = append(kept, rec)
			}
		}
		res.Records = kept
	}
	return res
}

func ParseDocument(ctx context.Context, doc Document, opts Options) (Result, error) {
	texts, err := ExtractPages(ctx, doc, opts.BatchSize)
	if err != nil {
		return Result{}, err
	}
	return ParseTexts(texts, opts), nil
}

// FindPage returns the first page (1-based) whose text matches pattern,
// case-insensitively, or 0 when no page does.
func FindPage(texts []string, pattern string) (int, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return 0, nil
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(pattern))
	if err != nil {
		return 0, fmt.Errorf("compile institute pattern: %w", err)
	}
	for i, text := range texts {
		if re.MatchString(text) {
			return i + 1, nil
		}
	}
	return 0, nil
}

// ParseInstitute parses only the first page matching the institute pattern.
// The metadata still comes from the whole document. A pattern that matches
// nothing yields no records.
func ParseInstitute(texts []string, pattern string, opts Options) (Result, error) {
	page, err := FindPage(texts, pattern)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Meta:      resultparse.ExtractMeta(strings.Join(texts, DocumentSeparator)),
		PageCount: len(texts),
		Records:   make([]models.InstituteRecord, 0, 1),
	}
	if page == 0 {
		return res, nil
	}
	rec := resultparse.ParsePage(texts[page-1], page)
	if opts.SkipEmpty && resultparse.Empty(rec) {
		return res, nil
	}
	res.Records = append(res.Records, rec)
	return res, nil
}
