package workflows

import (
	"context"
	"errors"
	"testing"

	"resultzone/internal/activities"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerUploadActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "ValidatePDFActivity", func(context.Context, activities.ValidatePDFInput) error { return nil })
	registerActivityName(env, "ComputeUploadHashActivity", func(context.Context, activities.ComputeUploadHashInput) (activities.ComputeUploadHashOutput, error) {
		return activities.ComputeUploadHashOutput{}, nil
	})
	registerActivityName(env, "UpdateUploadStatusActivity", func(context.Context, activities.UpdateUploadStatusInput) error { return nil })
	registerActivityName(env, "ExtractResultsActivity", func(context.Context, activities.ExtractResultsInput) (activities.ExtractResultsOutput, error) {
		return activities.ExtractResultsOutput{}, nil
	})
	registerActivityName(env, "PersistResultsActivity", func(context.Context, activities.PersistResultsInput) error { return nil })
	registerActivityName(env, "WriteResultArtifactsActivity", func(context.Context, activities.WriteResultArtifactsInput) (activities.WriteResultArtifactsOutput, error) {
		return activities.WriteResultArtifactsOutput{}, nil
	})
}

func TestResultExtractWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ResultExtractWorkflow)
	registerUploadActivities(env)

	env.OnActivity("ValidatePDFActivity", mock.Anything, activities.ValidatePDFInput{Path: "/tmp/r.pdf"}).Return(nil)
	env.OnActivity("ComputeUploadHashActivity", mock.Anything, activities.ComputeUploadHashInput{Path: "/tmp/r.pdf"}).Return(activities.ComputeUploadHashOutput{SHA256: "abc"}, nil)
	env.OnActivity("UpdateUploadStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractResultsActivity", mock.Anything, activities.ExtractResultsInput{UploadID: "u1", Path: "/tmp/r.pdf"}).
		Return(activities.ExtractResultsOutput{StagingPath: "/out/u1/parsed.json", PageCount: 3, RecordCount: 2, StudentCount: 40}, nil)
	env.OnActivity("PersistResultsActivity", mock.Anything, activities.PersistResultsInput{UploadID: "u1", StagingPath: "/out/u1/parsed.json"}).Return(nil)
	env.OnActivity("WriteResultArtifactsActivity", mock.Anything, mock.Anything).Return(activities.WriteResultArtifactsOutput{ResultsPath: "/out/u1/results.json"}, nil)

	env.ExecuteWorkflow(ResultExtractWorkflow, ResultExtractInput{UploadID: "u1", Path: "/tmp/r.pdf", Filename: "r.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)

	val, err := env.QueryWorkflow(QueryGetUploadStatus)
	require.NoError(t, err)
	var st UploadStatus
	require.NoError(t, val.Get(&st))
	require.Equal(t, "done", st.CurrentStep)
	require.Equal(t, 40, st.StudentCount)
	require.Equal(t, "abc", st.SHA256)
}

func TestResultExtractWorkflowRejectsNonPDF(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ResultExtractWorkflow)
	registerUploadActivities(env)

	env.OnActivity("ValidatePDFActivity", mock.Anything, mock.Anything).
		Return(temporal.NewNonRetryableApplicationError("notes.txt: uploaded file is not a PDF", activities.ErrTypeNotPDF, nil))
	env.OnActivity("UpdateUploadStatusActivity", mock.Anything, mock.MatchedBy(func(in activities.UpdateUploadStatusInput) bool {
		return in.Status == "failed" && in.FailReason != ""
	})).Return(nil).Once()

	env.ExecuteWorkflow(ResultExtractWorkflow, ResultExtractInput{UploadID: "u2", Path: "/tmp/notes.txt"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
	env.AssertExpectations(t)
}

func TestResultExtractWorkflowDecodeFailureMarksFailed(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ResultExtractWorkflow)
	registerUploadActivities(env)

	env.OnActivity("ValidatePDFActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ComputeUploadHashActivity", mock.Anything, mock.Anything).Return(activities.ComputeUploadHashOutput{SHA256: "abc"}, nil)
	env.OnActivity("UpdateUploadStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractResultsActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractResultsOutput{}, temporal.NewNonRetryableApplicationError("extract page 4: malformed stream", activities.ErrTypeExtractFailed, nil)).Once()

	env.ExecuteWorkflow(ResultExtractWorkflow, ResultExtractInput{UploadID: "u3", Path: "/tmp/r.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
	env.AssertNotCalled(t, "PersistResultsActivity", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "WriteResultArtifactsActivity", mock.Anything, mock.Anything)
}

func TestResultExtractWorkflowPersistFailureMarksFailed(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ResultExtractWorkflow)
	registerUploadActivities(env)

	env.OnActivity("ValidatePDFActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ComputeUploadHashActivity", mock.Anything, mock.Anything).Return(activities.ComputeUploadHashOutput{SHA256: "abc"}, nil)
	env.OnActivity("UpdateUploadStatusActivity", mock.Anything, mock.MatchedBy(func(in activities.UpdateUploadStatusInput) bool {
		return in.Status == "processing"
	})).Return(nil).Once()
	env.OnActivity("UpdateUploadStatusActivity", mock.Anything, mock.MatchedBy(func(in activities.UpdateUploadStatusInput) bool {
		return in.Status == "failed" && in.UploadID == "u4" && in.SHA256 == "abc" && in.FailReason != ""
	})).Return(nil).Once()
	env.OnActivity("ExtractResultsActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractResultsOutput{StagingPath: "/out/u4/parsed.json"}, nil)
	env.OnActivity("PersistResultsActivity", mock.Anything, mock.Anything).
		Return(temporal.NewNonRetryableApplicationError("replace results: connection refused", "DBError", nil))

	env.ExecuteWorkflow(ResultExtractWorkflow, ResultExtractInput{UploadID: "u4", Path: "/tmp/r.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
	env.AssertExpectations(t)
	env.AssertNotCalled(t, "WriteResultArtifactsActivity", mock.Anything, mock.Anything)

	val, err := env.QueryWorkflow(QueryGetUploadStatus)
	require.NoError(t, err)
	var st UploadStatus
	require.NoError(t, val.Get(&st))
	require.Equal(t, "failed", st.Status)
	require.Equal(t, "persist_results", st.CurrentStep)
	require.Equal(t, "failed", st.Steps["persist_results"])
}

func TestResultExtractWorkflowArtifactFailureMarksFailed(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ResultExtractWorkflow)
	registerUploadActivities(env)

	env.OnActivity("ValidatePDFActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ComputeUploadHashActivity", mock.Anything, mock.Anything).Return(activities.ComputeUploadHashOutput{SHA256: "abc"}, nil)
	env.OnActivity("UpdateUploadStatusActivity", mock.Anything, mock.MatchedBy(func(in activities.UpdateUploadStatusInput) bool {
		return in.Status == "processing"
	})).Return(nil).Once()
	env.OnActivity("UpdateUploadStatusActivity", mock.Anything, mock.MatchedBy(func(in activities.UpdateUploadStatusInput) bool {
		return in.Status == "failed" && in.FailReason != ""
	})).Return(nil).Once()
	env.OnActivity("ExtractResultsActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractResultsOutput{StagingPath: "/out/u5/parsed.json"}, nil)
	env.OnActivity("PersistResultsActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteResultArtifactsActivity", mock.Anything, mock.Anything).
		Return(activities.WriteResultArtifactsOutput{}, temporal.NewNonRetryableApplicationError("write results.json: disk full", "IOError", nil))

	env.ExecuteWorkflow(ResultExtractWorkflow, ResultExtractInput{UploadID: "u5", Path: "/tmp/r.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
	env.AssertExpectations(t)
}

func TestBatchIngestWorkflowCountsChildren(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BatchIngestWorkflow)
	env.RegisterWorkflow(ResultExtractWorkflow)
	registerActivityName(env, "ListPDFsActivity", func(context.Context, activities.ListPDFsInput) (activities.ListPDFsOutput, error) {
		return activities.ListPDFsOutput{}, nil
	})
	registerActivityName(env, "WriteIngestSummaryActivity", func(context.Context, activities.WriteIngestSummaryInput) error { return nil })

	env.OnActivity("ListPDFsActivity", mock.Anything, activities.ListPDFsInput{InputDir: "/in"}).
		Return(activities.ListPDFsOutput{Paths: []string{"/in/a.pdf", "/in/b.pdf", "/in/c.pdf"}}, nil)
	env.OnActivity("WriteIngestSummaryActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnWorkflow(ResultExtractWorkflow, mock.Anything, mock.MatchedBy(func(in ResultExtractInput) bool { return in.Filename == "b.pdf" })).
		Return("failed", nil)
	env.OnWorkflow(ResultExtractWorkflow, mock.Anything, mock.MatchedBy(func(in ResultExtractInput) bool { return in.Filename == "c.pdf" })).
		Return("", errors.New("child crashed"))
	env.OnWorkflow(ResultExtractWorkflow, mock.Anything, mock.Anything).Return("processed", nil)

	env.ExecuteWorkflow(BatchIngestWorkflow, BatchIngestInput{BatchID: "b1", InputDir: "/in", MaxConcurrentChildren: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	val, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var progress BatchIngestProgress
	require.NoError(t, val.Get(&progress))
	require.Equal(t, 3, progress.Total)
	require.Equal(t, 3, progress.Done)
	require.Equal(t, 2, progress.Failed)
	require.Equal(t, "processed", progress.PerFile["/in/a.pdf"])
	require.Equal(t, "failed", progress.PerFile["/in/b.pdf"])
	require.Equal(t, "failed", progress.PerFile["/in/c.pdf"])
}
