package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"

	"resultzone/internal/catalog"
	"resultzone/internal/config"
	"resultzone/internal/extract"
	"resultzone/internal/models"
	"resultzone/internal/report"
	"resultzone/internal/storage"
	"resultzone/internal/util"

	"go.temporal.io/sdk/temporal"
)

// Application error types the workflows branch on.
const (
	ErrTypeNotPDF        = "NotPDF"
	ErrTypeExtractFailed = "ExtractFailed"
)

const stagingFile = "parsed.json"

type Activities struct {
	cfg        config.Config
	uploadRepo *storage.UploadRepo
	resultRepo *storage.ResultRepo
	subjects   *catalog.SubjectCatalog
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	subjects, err := catalog.LoadSubjects(cfg.SubjectCatalogPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		log.Printf("subject catalog missing path=%s, subject names resolve as unknown", cfg.SubjectCatalogPath)
	}
	return &Activities{
		cfg:        cfg,
		uploadRepo: storage.NewUploadRepo(db),
		resultRepo: storage.NewResultRepo(db),
		subjects:   subjects,
	}, nil
}

// staged is the on-disk hand-off between extraction and the later steps.
type staged struct {
	Meta      models.DocumentMeta      `json:"meta"`
	PageCount int                      `json:"page_count"`
	Records   []models.InstituteRecord `json:"records"`
	Pages     []string                 `json:"pages"`
}

func (a *Activities) ListPDFsActivity(ctx context.Context, in ListPDFsInput) (ListPDFsOutput, error) {
	_ = ctx
	entries, err := os.ReadDir(in.InputDir)
	if err != nil {
		return ListPDFsOutput{}, fmt.Errorf("read input dir: %w", err)
	}
	paths := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() || !util.HasPDFExt(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(in.InputDir, e.Name()))
	}
	sort.Strings(paths)
	return ListPDFsOutput{Paths: paths}, nil
}

func (a *Activities) ValidatePDFActivity(ctx context.Context, in ValidatePDFInput) error {
	_ = ctx
	if err := util.CheckPDFFile(in.Path); err != nil {
		if errors.Is(err, util.ErrNotPDF) {
			return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotPDF, err)
		}
		return err
	}
	return nil
}

func (a *Activities) ComputeUploadHashActivity(ctx context.Context, in ComputeUploadHashInput) (ComputeUploadHashOutput, error) {
	_ = ctx
	sum, err := util.SHA256File(in.Path)
	if err != nil {
		return ComputeUploadHashOutput{}, err
	}
	return ComputeUploadHashOutput{SHA256: sum}, nil
}

func (a *Activities) UpdateUploadStatusActivity(ctx context.Context, in UpdateUploadStatusInput) error {
	return a.uploadRepo.UpsertUpload(ctx, models.Upload{
		UploadID:   in.UploadID,
		Filename:   in.Filename,
		SHA256:     in.SHA256,
		Status:     in.Status,
		FailReason: in.FailReason,
	})
}

// ExtractResultsActivity decodes every page, parses the results and stages
// them next to the upload's artifacts. Decode failures are not retried.
func (a *Activities) ExtractResultsActivity(ctx context.Context, in ExtractResultsInput) (ExtractResultsOutput, error) {
	mode := in.Mode
	if mode == "" {
		mode = a.cfg.ExtractMode
	}
	m, err := extract.ParseMode(mode)
	if err != nil {
		return ExtractResultsOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeExtractFailed, err)
	}
	filter := in.InstituteFilter
	if filter == "" {
		filter = a.cfg.InstituteFilter
	}
	opts := extract.Options{BatchSize: a.cfg.MaxConcurrentPages, Mode: m, SkipEmpty: a.cfg.SkipEmptyPages}

	doc, err := extract.OpenPDF(in.Path)
	if err != nil {
		return ExtractResultsOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeExtractFailed, err)
	}
	defer doc.Close()

	texts, err := extract.ExtractPages(ctx, doc, opts.BatchSize)
	if err != nil {
		return ExtractResultsOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeExtractFailed, err)
	}
	if !extract.HasText(texts) {
		err := util.ErrNoExtractableText
		return ExtractResultsOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeExtractFailed, err)
	}
	var res extract.Result
	if filter != "" {
		res, err = extract.ParseInstitute(texts, filter, opts)
		if err != nil {
			return ExtractResultsOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeExtractFailed, err)
		}
	} else {
		res = extract.ParseTexts(texts, opts)
	}

	stagingPath := filepath.Join(a.cfg.DataOutRoot, "uploads", in.UploadID, stagingFile)
	if err := util.WriteJSONAtomic(stagingPath, staged{Meta: res.Meta, PageCount: res.PageCount, Records: res.Records, Pages: texts}); err != nil {
		return ExtractResultsOutput{}, fmt.Errorf("stage parsed results: %w", err)
	}

	students := 0
	for _, rec := range res.Records {
		students += len(rec.Students)
	}
	log.Printf("extracted upload=%s pages=%d records=%d students=%d mode=%s", in.UploadID, res.PageCount, len(res.Records), students, m)
	return ExtractResultsOutput{
		StagingPath:  stagingPath,
		PageCount:    res.PageCount,
		RecordCount:  len(res.Records),
		StudentCount: students,
		Semester:     res.Meta.Semester,
		Regulation:   res.Meta.Regulation,
	}, nil
}

func (a *Activities) PersistResultsActivity(ctx context.Context, in PersistResultsInput) error {
	s, err := loadStaged(in.StagingPath)
	if err != nil {
		return err
	}
	return a.resultRepo.ReplaceResults(ctx, in.UploadID, s.Meta, s.PageCount, s.Records)
}

func (a *Activities) WriteResultArtifactsActivity(ctx context.Context, in WriteResultArtifactsInput) (WriteResultArtifactsOutput, error) {
	_ = ctx
	s, err := loadStaged(in.StagingPath)
	if err != nil {
		return WriteResultArtifactsOutput{}, err
	}
	dir := filepath.Join(a.cfg.DataOutRoot, "uploads", in.UploadID)
	path, err := report.WriteArtifacts(dir, report.Bundle{
		Records:  s.Records,
		Meta:     s.Meta,
		Pages:    s.Pages,
		Subjects: a.subjects,
	})
	if err != nil {
		return WriteResultArtifactsOutput{}, err
	}
	return WriteResultArtifactsOutput{ResultsPath: path}, nil
}

func (a *Activities) WriteIngestSummaryActivity(ctx context.Context, in WriteIngestSummaryInput) error {
	_ = ctx
	outPath := filepath.Join(a.cfg.DataOutRoot, "batches", in.BatchID, "summary.json")
	return util.WriteJSONAtomic(outPath, in.Summary)
}

func loadStaged(path string) (staged, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return staged{}, fmt.Errorf("read staged results: %w", err)
	}
	var s staged
	if err := json.Unmarshal(b, &s); err != nil {
		return staged{}, fmt.Errorf("decode staged results: %w", err)
	}
	return s, nil
}
