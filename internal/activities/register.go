package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListPDFsActivity)
	w.RegisterActivity(a.ValidatePDFActivity)
	w.RegisterActivity(a.ComputeUploadHashActivity)
	w.RegisterActivity(a.UpdateUploadStatusActivity)
	w.RegisterActivity(a.ExtractResultsActivity)
	w.RegisterActivity(a.PersistResultsActivity)
	w.RegisterActivity(a.WriteResultArtifactsActivity)
	w.RegisterActivity(a.WriteIngestSummaryActivity)
}
