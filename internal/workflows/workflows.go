package workflows

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"resultzone/internal/activities"
	"resultzone/internal/storage"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetUploadStatus = "GetUploadStatus"
	QueryGetProgress     = "GetProgress"
)

// batchNamespace seeds deterministic upload ids for files found by a batch ingest.
var batchNamespace = uuid.MustParse("6f1c3a52-8d0e-4b7a-9c51-2e4f0d7b8a13")

func BatchIngestWorkflow(ctx workflow.Context, input BatchIngestInput) (string, error) {
	progress := BatchIngestProgress{
		BatchID:       input.BatchID,
		PerFile:       map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (BatchIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	var listOut activities.ListPDFsOutput
	if err := workflow.ExecuteActivity(ctx, "ListPDFsActivity", activities.ListPDFsInput{InputDir: input.InputDir}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	paths := listOut.Paths
	progress.Total = len(paths)
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(paths); i += maxChildren {
		end := min(i+maxChildren, len(paths))
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		childPaths := make([]string, 0, end-i)
		for _, path := range paths[i:end] {
			uploadID := uuid.NewSHA1(batchNamespace, []byte(input.BatchID+":"+path)).String()
			workflowID := "upload-" + uploadID
			progress.PerFile[path] = storage.StatusProcessing
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			f := workflow.ExecuteChildWorkflow(childCtx, ResultExtractWorkflow, ResultExtractInput{
				UploadID: uploadID,
				Path:     path,
				Filename: filepath.Base(path),
				Mode:     input.Mode,
			})
			futures = append(futures, f)
			childPaths = append(childPaths, path)
			progress.ChildWorkflow[path] = workflowID
		}

		for idx, f := range futures {
			var childStatus string
			err := f.Get(ctx, &childStatus)
			path := childPaths[idx]
			progress.Done++
			if err != nil {
				childStatus = storage.StatusFailed
			}
			if childStatus == storage.StatusFailed {
				progress.Failed++
			}
			progress.PerFile[path] = childStatus
		}
	}
	_ = workflow.ExecuteActivity(ctx, "WriteIngestSummaryActivity", activities.WriteIngestSummaryInput{
		BatchID: input.BatchID,
		Summary: map[string]any{
			"batch_id":        input.BatchID,
			"input_dir":       input.InputDir,
			"total":           progress.Total,
			"done":            progress.Done,
			"failed":          progress.Failed,
			"per_file_status": progress.PerFile,
			"generated_at":    workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	return "completed", nil
}

// ResultExtractWorkflow runs one uploaded result sheet through validation,
// extraction, persistence and export. A file that is not a PDF or cannot be
// decoded ends the run with status "failed" and nothing persisted. Persist or
// export errors that survive retries also mark the upload failed.
func ResultExtractWorkflow(ctx workflow.Context, input ResultExtractInput) (string, error) {
	status := UploadStatus{
		UploadID:    input.UploadID,
		Path:        input.Path,
		CurrentStep: "init",
		Status:      storage.StatusProcessing,
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetUploadStatus, func() (UploadStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	filename := input.Filename
	if filename == "" {
		filename = filepath.Base(input.Path)
	}

	fail := func(reason string) (string, error) {
		status.Status = storage.StatusFailed
		status.FailReason = reason
		status.Steps[status.CurrentStep] = storage.StatusFailed
		if err := workflow.ExecuteActivity(ctx, "UpdateUploadStatusActivity", activities.UpdateUploadStatusInput{
			UploadID:   input.UploadID,
			Filename:   filename,
			SHA256:     status.SHA256,
			Status:     storage.StatusFailed,
			FailReason: reason,
		}).Get(ctx, nil); err != nil {
			return "", err
		}
		return status.Status, nil
	}

	status.CurrentStep = "validate"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "ValidatePDFActivity", activities.ValidatePDFInput{Path: input.Path}).Get(ctx, nil); err != nil {
		if isAppErrorType(err, activities.ErrTypeNotPDF) {
			return fail(failReason(err))
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "compute_hash"
	status.Steps[status.CurrentStep] = "processing"
	var hashOut activities.ComputeUploadHashOutput
	if err := workflow.ExecuteActivity(ctx, "ComputeUploadHashActivity", activities.ComputeUploadHashInput{Path: input.Path}).Get(ctx, &hashOut); err != nil {
		return "", err
	}
	status.SHA256 = hashOut.SHA256
	status.Steps[status.CurrentStep] = "done"

	if err := workflow.ExecuteActivity(ctx, "UpdateUploadStatusActivity", activities.UpdateUploadStatusInput{
		UploadID: input.UploadID,
		Filename: filename,
		SHA256:   hashOut.SHA256,
		Status:   storage.StatusProcessing,
	}).Get(ctx, nil); err != nil {
		return "", err
	}

	status.CurrentStep = "extract_results"
	status.Steps[status.CurrentStep] = "processing"
	extractCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var extractOut activities.ExtractResultsOutput
	if err := workflow.ExecuteActivity(extractCtx, "ExtractResultsActivity", activities.ExtractResultsInput{
		UploadID:        input.UploadID,
		Path:            input.Path,
		Mode:            input.Mode,
		InstituteFilter: input.InstituteFilter,
	}).Get(ctx, &extractOut); err != nil {
		return fail(failReason(err))
	}
	status.PageCount = extractOut.PageCount
	status.RecordCount = extractOut.RecordCount
	status.StudentCount = extractOut.StudentCount
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "persist_results"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "PersistResultsActivity", activities.PersistResultsInput{
		UploadID:    input.UploadID,
		StagingPath: extractOut.StagingPath,
	}).Get(ctx, nil); err != nil {
		return fail(failReason(err))
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "write_artifacts"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "WriteResultArtifactsActivity", activities.WriteResultArtifactsInput{
		UploadID:    input.UploadID,
		StagingPath: extractOut.StagingPath,
	}).Get(ctx, nil); err != nil {
		return fail(failReason(err))
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "mark_processed"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpdateUploadStatusActivity", activities.UpdateUploadStatusInput{
		UploadID: input.UploadID,
		Filename: filename,
		SHA256:   hashOut.SHA256,
		Status:   storage.StatusProcessed,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.CurrentStep = "done"
	status.Status = storage.StatusProcessed
	return status.Status, nil
}

func isAppErrorType(err error, errType string) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == errType
}

func failReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return strings.TrimSpace(err.Error())
}
