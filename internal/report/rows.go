// Package report shapes parsed records for export and display.
package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"resultzone/internal/catalog"
	"resultzone/internal/models"
	"resultzone/internal/util"
)

const (
	ResultsFile  = "results.json"
	RecordsFile  = "records.json"
	StudentsFile = "students.jsonl"
	PagesFile    = "pages.txt"

	NotAvailable = "N/A"
)

type SubjectRow struct {
	Code     string `json:"code"`
	Status   string `json:"status"`
	Name     string `json:"name"`
	Semester string `json:"semester"`
}

// GPAValue is a GPA that exports as a number, or "N/A" when absent.
type GPAValue struct {
	V *float64
}

func (g GPAValue) MarshalJSON() ([]byte, error) {
	if g.V == nil {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(*g.V)
}

func (g GPAValue) String() string {
	if g.V == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%g", *g.V)
}

type Row struct {
	Roll             string       `json:"roll"`
	ReferredSubjects []SubjectRow `json:"referredSubjects"`
	GPA              GPAValue     `json:"gpa"`
}

// BuildRows flattens records into the download payload, one row per roll.
func BuildRows(records []models.InstituteRecord, subjects *catalog.SubjectCatalog) []Row {
	rows := make([]Row, 0)
	for _, rec := range records {
		for _, s := range rec.Students {
			rows = append(rows, buildRow(s, subjects))
		}
	}
	return rows
}

func buildRow(s models.StudentRecord, subjects *catalog.SubjectCatalog) Row {
	row := Row{Roll: s.Roll, ReferredSubjects: make([]SubjectRow, 0, len(s.ReferredSubjects)), GPA: GPAValue{V: s.GPA}}
	for _, ref := range s.ReferredSubjects {
		sr := SubjectRow{Code: ref.Code, Status: ref.Status, Name: catalog.UnknownSubject, Semester: catalog.UnknownSemester}
		if sub, ok := subjects.Lookup(ref.Code); ok {
			sr.Name = sub.Name
			sr.Semester = string(sub.Semester)
		}
		row.ReferredSubjects = append(row.ReferredSubjects, sr)
	}
	return row
}

// DisplayNames resolves each referred subject against the reporting semester.
func DisplayNames(s models.StudentRecord, subjects *catalog.SubjectCatalog, semester string) []string {
	out := make([]string, 0, len(s.ReferredSubjects))
	for _, ref := range s.ReferredSubjects {
		out = append(out, subjects.Resolve(ref.Code, semester))
	}
	return out
}

var statusWords = map[string]string{
	"T": "Theory",
	"P": "Practical",
}

// ExpandStatus spells out status tokens: "T,P" becomes "Theory, Practical".
// Unknown tokens are kept as printed.
func ExpandStatus(status string) string {
	parts := strings.Split(status, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if w, ok := statusWords[strings.ToUpper(p)]; ok {
			p = w
		}
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

// Summary renders one roll the way the roll search shows it:
// numbered "code (Theory)" entries, or the GPA.
func Summary(s models.StudentRecord) []string {
	if s.GPA != nil {
		return []string{GPAValue{V: s.GPA}.String()}
	}
	out := make([]string, 0, len(s.ReferredSubjects))
	for i, ref := range s.ReferredSubjects {
		out = append(out, fmt.Sprintf("%d. %s (%s)", i+1, ref.Code, ExpandStatus(ref.Status)))
	}
	return out
}

type Bundle struct {
	Records  []models.InstituteRecord
	Meta     models.DocumentMeta
	Pages    []string
	Subjects *catalog.SubjectCatalog
}

// WriteArtifacts writes the export set for one upload into dir and returns
// the path of results.json.
func WriteArtifacts(dir string, b Bundle) (string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return "", err
	}
	resultsPath := filepath.Join(dir, ResultsFile)
	if err := util.WriteJSONAtomic(resultsPath, BuildRows(b.Records, b.Subjects)); err != nil {
		return "", err
	}
	if err := util.WriteJSONAtomic(filepath.Join(dir, RecordsFile), map[string]any{
		"meta":    b.Meta,
		"records": b.Records,
	}); err != nil {
		return "", err
	}
	students := make([]models.StudentHit, 0)
	for _, rec := range b.Records {
		for _, s := range rec.Students {
			students = append(students, models.StudentHit{
				InstitutionCode: rec.InstitutionCode,
				InstitutionName: rec.InstitutionName,
				District:        rec.District,
				Page:            rec.Page,
				Student:         s,
			})
		}
	}
	if err := util.WriteJSONLinesAtomic(filepath.Join(dir, StudentsFile), students); err != nil {
		return "", err
	}
	if len(b.Pages) > 0 {
		if err := util.WriteTextAtomic(filepath.Join(dir, PagesFile), strings.Join(b.Pages, "\n\n")); err != nil {
			return "", err
		}
	}
	return resultsPath, nil
}
