package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDoc struct {
	pages    []string
	failPage int

	inFlight atomic.Int32
	mu       sync.Mutex
	peak     int32
	calls    []int
}

func (d *fakeDoc) NumPages() int { return len(d.pages) }

func (d *fakeDoc) PageText(ctx context.Context, n int) (string, error) {
	cur := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	d.mu.Lock()
	if cur > d.peak {
		d.peak = cur
	}
	d.calls = append(d.calls, n)
	d.mu.Unlock()

	// later pages finish first so completion order differs from page order
	time.Sleep(time.Duration(len(d.pages)-n) * time.Millisecond)
	if n == d.failPage {
		return "", errors.New("corrupt content stream")
	}
	return d.pages[n-1], nil
}

func newFakeDoc(n int) *fakeDoc {
	pages := make([]string, n)
	for i := range pages {
		pages[i] = fmt.Sprintf("page-%d %06d(3.%02d)", i+1, 100000+i, i%100)
	}
	return &fakeDoc{pages: pages}
}

func TestExtractPagesPreservesOrderForAnyLimit(t *testing.T) {
	sequential, err := ExtractPages(context.Background(), newFakeDoc(23), 1)
	require.NoError(t, err)
	require.Len(t, sequential, 23)

	for _, k := range []int{2, 3, 10, 23, 50} {
		doc := newFakeDoc(23)
		got, err := ExtractPages(context.Background(), doc, k)
		require.NoError(t, err)
		require.Equal(t, sequential, got, "batch size %d", k)
		require.LessOrEqual(t, int(doc.peak), k)
	}
}

func TestExtractPagesDefaultBatchSize(t *testing.T) {
	doc := newFakeDoc(25)
	got, err := ExtractPages(context.Background(), doc, 0)
	require.NoError(t, err)
	require.Len(t, got, 25)
	require.LessOrEqual(t, int(doc.peak), MaxConcurrentPages)
}

func TestExtractPagesFailureAbortsRemainingBatches(t *testing.T) {
	doc := newFakeDoc(12)
	doc.failPage = 2
	_, err := ExtractPages(context.Background(), doc, 4)
	require.Error(t, err)
	require.Contains(t, err.Error(), "extract page 2")

	// the first batch fails, so pages from later batches are never requested
	for _, n := range doc.calls {
		require.LessOrEqual(t, n, 4)
	}
}

func TestExtractPagesEmptyDocument(t *testing.T) {
	got, err := ExtractPages(context.Background(), &fakeDoc{}, 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParseTextsModes(t *testing.T) {
	texts := []string{
		"Diploma 3rd Semester 2016 Regulation",
		"12345 - Example College, Dhaka 123456{66611(T)} 123457(3.50)",
		"54321 - Other Institute, Khulna 223456(2.75)",
	}

	res := ParseTexts(texts, Options{Mode: ModePage})
	require.Equal(t, 3, res.PageCount)
	require.Equal(t, "3", res.Meta.Semester)
	require.Equal(t, "2016", res.Meta.Regulation)
	require.Len(t, res.Records, 3)
	require.Equal(t, 1, res.Records[0].Page)
	require.Equal(t, "12345", res.Records[1].InstitutionCode)
	require.Equal(t, 2, res.Records[1].Page)
	require.Equal(t, "Other Institute", res.Records[2].InstitutionName)

	res = ParseTexts(texts, Options{Mode: ModePage, SkipEmpty: true})
	require.Len(t, res.Records, 2)

	res = ParseTexts(texts, Options{Mode: ModeDocument})
	require.Len(t, res.Records, 1)
	require.Equal(t, 0, res.Records[0].Page)
	require.Equal(t, "12345", res.Records[0].InstitutionCode)
	require.Len(t, res.Records[0].Students, 3)
}

func TestParseDocument(t *testing.T) {
	doc := newFakeDoc(3)
	res, err := ParseDocument(context.Background(), doc, Options{BatchSize: 2, Mode: ModePage})
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	require.Equal(t, "100002", res.Records[2].Students[0].Roll)

	doc.failPage = 3
	_, err = ParseDocument(context.Background(), doc, Options{BatchSize: 2})
	require.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModePage, m)
	m, err = ParseMode(" Document ")
	require.NoError(t, err)
	require.Equal(t, ModeDocument, m)
	_, err = ParseMode("chunks")
	require.Error(t, err)
}

func TestFindPage(t *testing.T) {
	texts := []string{"cover", "12345 - Ashulia Private Institute of Science and Technology, Dhaka", "other"}
	n, err := FindPage(texts, "ashulia private institute of science and technology")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = FindPage(texts, "Missing Institute")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestJoinItems(t *testing.T) {
	require.Equal(t, "123456 { 66611(T) }", JoinItems([]string{"123456", " ", "{", "66611(T)", "", "}"}))
}

func TestReadPDFRejectsNonPDF(t *testing.T) {
	_, err := ReadPDF([]byte("hello world"))
	require.Error(t, err)
}

func TestParseInstitute(t *testing.T) {
	texts := []string{
		"Diploma in Engineering 5th Semester 2016 Regulation",
		"12345 - Ashulia Private Institute, Dhaka 654321 (3.50)",
		"23456 - Barishal Polytechnic, Barishal 765432 { 66611(T) }",
	}
	res, err := ParseInstitute(texts, "barishal polytechnic", Options{SkipEmpty: true})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Equal(t, 3, res.Records[0].Page)
	require.Equal(t, "23456", res.Records[0].InstitutionCode)
	require.Equal(t, "5", res.Meta.Semester)
	require.Equal(t, 3, res.PageCount)

	res, err = ParseInstitute(texts, "nowhere", Options{})
	require.NoError(t, err)
	require.Empty(t, res.Records)
}

func TestHasText(t *testing.T) {
	require.False(t, HasText(nil))
	require.False(t, HasText([]string{"", "  "}))
	require.True(t, HasText([]string{"", "123456 (3.50)"}))
}
