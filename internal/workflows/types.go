package workflows

type ResultExtractInput struct {
	UploadID        string `json:"upload_id"`
	Path            string `json:"path"`
	Filename        string `json:"filename"`
	Mode            string `json:"mode,omitempty"`
	InstituteFilter string `json:"institute_filter,omitempty"`
}

type BatchIngestInput struct {
	BatchID               string `json:"batch_id"`
	InputDir              string `json:"input_dir"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
	Mode                  string `json:"mode,omitempty"`
}

type UploadStatus struct {
	UploadID     string            `json:"upload_id"`
	Path         string            `json:"path"`
	SHA256       string            `json:"sha256,omitempty"`
	CurrentStep  string            `json:"current_step"`
	Status       string            `json:"status"`
	FailReason   string            `json:"fail_reason,omitempty"`
	PageCount    int               `json:"page_count"`
	RecordCount  int               `json:"record_count"`
	StudentCount int               `json:"student_count"`
	Steps        map[string]string `json:"steps"`
}

// BatchIngestProgress counts finished children in Done whatever their outcome;
// Failed is the subset that ended failed or errored.
type BatchIngestProgress struct {
	BatchID       string            `json:"batch_id"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerFile       map[string]string `json:"per_file_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}
