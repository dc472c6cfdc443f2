package models

import "time"

const (
	UnknownCode        = "Unknown Code"
	UnknownInstitution = "Unknown Institution"
	UnknownDistrict    = "Unknown District"
)

type SubjectReference struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

// StudentRecord holds one roll number. A nil ReferredSubjects serializes as null.
type StudentRecord struct {
	Roll             string             `json:"roll"`
	ReferredSubjects []SubjectReference `json:"referred_subjects"`
	GPA              *float64           `json:"gpa"`
}

type InstituteRecord struct {
	InstitutionCode string          `json:"institutionCode"`
	InstitutionName string          `json:"institutionName"`
	District        string          `json:"district"`
	Students        []StudentRecord `json:"rollData"`
	Page            int             `json:"page"`
}

type DocumentMeta struct {
	Semester   string `json:"semester,omitempty"`
	Regulation string `json:"regulation,omitempty"`
}

type Upload struct {
	UploadID   string    `json:"upload_id"`
	Filename   string    `json:"filename"`
	SHA256     string    `json:"sha256"`
	Status     string    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	Semester   string    `json:"semester,omitempty"`
	Regulation string    `json:"regulation,omitempty"`
	PageCount  int       `json:"page_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StudentHit is a roll found in a persisted upload, with its institute context.
type StudentHit struct {
	InstitutionCode string        `json:"institutionCode"`
	InstitutionName string        `json:"institutionName"`
	District        string        `json:"district"`
	Page            int           `json:"page"`
	Student         StudentRecord `json:"student"`
}
