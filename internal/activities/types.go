package activities

type ListPDFsInput struct {
	InputDir string `json:"input_dir"`
}

type ListPDFsOutput struct {
	Paths []string `json:"paths"`
}

type ValidatePDFInput struct {
	Path string `json:"path"`
}

type ComputeUploadHashInput struct {
	Path string `json:"path"`
}

type ComputeUploadHashOutput struct {
	SHA256 string `json:"sha256"`
}

type UpdateUploadStatusInput struct {
	UploadID   string `json:"upload_id"`
	Filename   string `json:"filename"`
	SHA256     string `json:"sha256"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason"`
}

type ExtractResultsInput struct {
	UploadID string `json:"upload_id"`
	Path     string `json:"path"`
	// Mode overrides the configured extract mode when set.
	Mode string `json:"mode,omitempty"`
	// InstituteFilter overrides the configured single-institute pattern when set.
	InstituteFilter string `json:"institute_filter,omitempty"`
}

// ExtractResultsOutput stays small: parsed records are staged on disk and
// later activities read them from StagingPath.
type ExtractResultsOutput struct {
	StagingPath  string `json:"staging_path"`
	PageCount    int    `json:"page_count"`
	RecordCount  int    `json:"record_count"`
	StudentCount int    `json:"student_count"`
	Semester     string `json:"semester,omitempty"`
	Regulation   string `json:"regulation,omitempty"`
}

type PersistResultsInput struct {
	UploadID    string `json:"upload_id"`
	StagingPath string `json:"staging_path"`
}

type WriteResultArtifactsInput struct {
	UploadID    string `json:"upload_id"`
	StagingPath string `json:"staging_path"`
}

type WriteResultArtifactsOutput struct {
	ResultsPath string `json:"results_path"`
}

type WriteIngestSummaryInput struct {
	BatchID string         `json:"batch_id"`
	Summary map[string]any `json:"summary"`
}
