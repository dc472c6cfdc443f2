package api

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"resultzone/internal/catalog"
	"resultzone/internal/config"
	"resultzone/internal/models"
	"resultzone/internal/report"
	"resultzone/internal/storage"
	"resultzone/internal/util"
	"resultzone/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

var rollPattern = regexp.MustCompile(`^\d{6}$`)

type uploadStore interface {
	UpsertUpload(ctx context.Context, u models.Upload) error
	GetUpload(ctx context.Context, uploadID string) (models.Upload, error)
	ListUploads(ctx context.Context, limit int) ([]models.Upload, error)
	FindBySHA(ctx context.Context, sha string) (models.Upload, bool, error)
}

type resultStore interface {
	ListRecords(ctx context.Context, uploadID string) ([]models.InstituteRecord, error)
	FindRoll(ctx context.Context, uploadID, roll string) ([]models.StudentHit, error)
}

// workflowClient is the part of the Temporal client the API needs.
type workflowClient interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type Server struct {
	cfg      config.Config
	uploads  uploadStore
	results  resultStore
	temporal workflowClient
	subjects *catalog.SubjectCatalog
	students *catalog.StudentDirectory
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	subjects, err := catalog.LoadSubjects(cfg.SubjectCatalogPath)
	if err != nil {
		log.Printf("subject catalog unavailable path=%s err=%v", cfg.SubjectCatalogPath, err)
	}
	students, err := catalog.LoadStudents(cfg.StudentDirPath)
	if err != nil {
		log.Printf("student directory unavailable path=%s err=%v", cfg.StudentDirPath, err)
	}
	return &Server{
		cfg:      cfg,
		uploads:  storage.NewUploadRepo(db),
		results:  storage.NewResultRepo(db),
		temporal: tc,
		subjects: subjects,
		students: students,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/uploads", s.handleUploads)
	mux.HandleFunc("/uploads/", s.handleUploadScoped)
	mux.HandleFunc("/batches", s.handleBatches)
	mux.HandleFunc("/batches/", s.handleBatchScoped)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		uploads, err := s.uploads.ListUploads(r.Context(), 50)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleUploadScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/uploads/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	uploadID := parts[0]
	if _, err := uuid.Parse(uploadID); err != nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("upload %s: %w", uploadID, util.ErrUploadNotFound))
		return
	}

	switch {
	case len(parts) == 1:
		u, err := s.uploads.GetUpload(r.Context(), uploadID)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	case len(parts) == 2 && parts[1] == "progress":
		s.handleProgress(w, r, uploadID)
	case len(parts) == 2 && parts[1] == "results":
		s.handleResults(w, r, uploadID)
	case len(parts) == 2 && parts[1] == report.ResultsFile:
		s.handleResultsDownload(w, r, uploadID)
	case len(parts) == 3 && parts[1] == "rolls":
		s.handleRoll(w, r, uploadID, parts[2])
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}

	fh, ok := uploadedFile(r.MultipartForm)
	if !ok {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no file provided"))
		return
	}
	if !util.HasPDFExt(fh.Filename) {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("%s: %w", filepath.Base(fh.Filename), util.ErrNotPDF))
		return
	}

	uploadID := uuid.NewString()
	inDir := filepath.Join(s.cfg.DataInRoot, "uploads", uploadID)
	if err := util.EnsureDir(inDir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	sha, savedPath, err := saveUploadedFile(inDir, fh)
	if err != nil {
		_ = os.RemoveAll(inDir)
		if errors.Is(err, util.ErrNotPDF) {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	if prev, found, err := s.uploads.FindBySHA(r.Context(), sha); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	} else if found {
		_ = os.RemoveAll(inDir)
		writeJSON(w, http.StatusOK, map[string]any{"upload_id": prev.UploadID, "sha256": sha, "duplicate": true, "status": prev.Status})
		return
	}

	filename := filepath.Base(savedPath)
	if err := s.uploads.UpsertUpload(r.Context(), models.Upload{
		UploadID: uploadID,
		Filename: filename,
		SHA256:   sha,
		Status:   storage.StatusPending,
	}); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       uploadWorkflowID(uploadID),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.ResultExtractWorkflow, workflows.ResultExtractInput{
		UploadID:        uploadID,
		Path:            savedPath,
		Filename:        filename,
		Mode:            strings.TrimSpace(r.FormValue("mode")),
		InstituteFilter: strings.TrimSpace(r.FormValue("institute")),
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	log.Printf("upload accepted upload_id=%s filename=%s sha256=%s", uploadID, filename, sha)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"upload_id":   uploadID,
		"sha256":      sha,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

// handleBatches starts a batch ingest over a directory under the data-in root.
func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Dir  string `json:"dir"`
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Dir = strings.TrimSpace(req.Dir)
	if req.Dir == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("dir is required"))
		return
	}
	inputDir, err := util.SafeJoin(s.cfg.DataInRoot, req.Dir)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if fi, err := os.Stat(inputDir); err != nil || !fi.IsDir() {
		writeErr(w, http.StatusNotFound, fmt.Errorf("batch dir %s not found", req.Dir))
		return
	}

	batchID := uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       batchWorkflowID(batchID),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.BatchIngestWorkflow, workflows.BatchIngestInput{
		BatchID:               batchID,
		InputDir:              inputDir,
		MaxConcurrentChildren: s.cfg.IngestMaxChildren,
		Mode:                  strings.TrimSpace(req.Mode),
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"batch_id": batchID, "workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleBatchScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/batches/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "progress" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	resp, err := s.temporal.QueryWorkflow(r.Context(), batchWorkflowID(parts[0]), "", workflows.QueryGetProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("batch %s not found: %w", parts[0], err))
		return
	}
	var prog workflows.BatchIngestProgress
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, uploadID string) {
	resp, err := s.temporal.QueryWorkflow(r.Context(), uploadWorkflowID(uploadID), "", workflows.QueryGetUploadStatus)
	if err == nil {
		var st workflows.UploadStatus
		if err := resp.Get(&st); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
		return
	}
	// No queryable workflow, report what the database knows.
	u, err := s.uploads.GetUpload(r.Context(), uploadID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, workflows.UploadStatus{
		UploadID:    u.UploadID,
		CurrentStep: u.Status,
		Status:      u.Status,
		FailReason:  u.FailReason,
		PageCount:   u.PageCount,
		Steps:       map[string]string{},
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request, uploadID string) {
	u, records, ok := s.loadProcessed(w, r, uploadID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"upload":  u,
		"meta":    models.DocumentMeta{Semester: u.Semester, Regulation: u.Regulation},
		"records": records,
	})
}

func (s *Server) handleResultsDownload(w http.ResponseWriter, r *http.Request, uploadID string) {
	_, records, ok := s.loadProcessed(w, r, uploadID)
	if !ok {
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.ResultsFile+`"`)
	writeJSON(w, http.StatusOK, report.BuildRows(records, s.subjects))
}

type rollHit struct {
	models.StudentHit
	Summary  []string `json:"summary"`
	Subjects []string `json:"subjects"`
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request, uploadID, roll string) {
	if !rollPattern.MatchString(roll) {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("roll must be six digits"))
		return
	}
	u, err := s.uploads.GetUpload(r.Context(), uploadID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	hits, err := s.results.FindRoll(r.Context(), uploadID, roll)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if len(hits) == 0 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("roll %s not found", roll))
		return
	}
	out := make([]rollHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, rollHit{
			StudentHit: h,
			Summary:    report.Summary(h.Student),
			Subjects:   report.DisplayNames(h.Student, s.subjects, u.Semester),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roll": roll,
		"name": s.students.Name(roll),
		"hits": out,
	})
}

func (s *Server) loadProcessed(w http.ResponseWriter, r *http.Request, uploadID string) (models.Upload, []models.InstituteRecord, bool) {
	u, err := s.uploads.GetUpload(r.Context(), uploadID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return models.Upload{}, nil, false
	}
	if u.Status != storage.StatusProcessed {
		writeErr(w, http.StatusConflict, fmt.Errorf("upload is %s", u.Status))
		return models.Upload{}, nil, false
	}
	records, err := s.results.ListRecords(r.Context(), uploadID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return models.Upload{}, nil, false
	}
	return u, records, true
}

func uploadWorkflowID(uploadID string) string {
	return "upload-" + uploadID
}

func batchWorkflowID(batchID string) string {
	return "batch-" + batchID
}

// saveUploadedFile copies the upload into dstDir while hashing it. The
// content must carry the PDF marker or the copy is rejected.
func saveUploadedFile(dstDir string, fh *multipart.FileHeader) (sha, path string, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	br := bufio.NewReaderSize(src, 1024)
	head, err := br.Peek(1024)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", "", fmt.Errorf("read upload header: %w", err)
	}
	if !util.HasPDFMagic(head) {
		return "", "", fmt.Errorf("%s: %w", filepath.Base(fh.Filename), util.ErrNotPDF)
	}

	tmp, err := os.CreateTemp(dstDir, "upload-*.pdf")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), br); err != nil {
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", err
	}
	finalPath := filepath.Join(dstDir, filepath.Base(fh.Filename))
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", fmt.Errorf("atomic move upload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), finalPath, nil
}

func uploadedFile(form *multipart.Form) (*multipart.FileHeader, bool) {
	if form == nil {
		return nil, false
	}
	if files := form.File["file"]; len(files) > 0 {
		return files[0], true
	}
	for _, v := range form.File {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func statusFor(err error) int {
	if errors.Is(err, util.ErrUploadNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "RZ-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "RZ-DB-5001",
				Message: "Database schema is not initialized. Restart the API to create it.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "RZ-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "RZ-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "RZ-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "RZ-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "RZ-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "RZ-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	if status >= 400 && status < 500 && err != nil {
		switch {
		case errors.Is(err, util.ErrNotPDF):
			code = "RZ-API-4002"
			msg = "Only PDF result sheets are accepted."
		case errors.Is(err, util.ErrUploadNotFound):
			msg = "Upload was not found."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(raw, "dir is required"):
			msg = "A batch directory is required."
		case strings.Contains(raw, "no file provided"):
			msg = "No PDF file was provided."
		case strings.Contains(raw, "roll must be six digits"):
			msg = "Roll numbers are six digits."
		case strings.Contains(raw, "upload is "):
			msg = "Results are not ready for this upload."
		case strings.Contains(raw, "request body too large"):
			msg = "Uploaded file is too large."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
