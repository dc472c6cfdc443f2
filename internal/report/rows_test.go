package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"resultzone/internal/catalog"
	"resultzone/internal/models"

	"github.com/stretchr/testify/require"
)

func gpa(v float64) *float64 { return &v }

func sampleRecords() []models.InstituteRecord {
	return []models.InstituteRecord{{
		InstitutionCode: "12345",
		InstitutionName: "Example College",
		District:        "Dhaka",
		Page:            2,
		Students: []models.StudentRecord{
			{Roll: "123456", ReferredSubjects: []models.SubjectReference{{Code: "66611", Status: "T"}, {Code: "99999", Status: "T,P"}}},
			{Roll: "123457", GPA: gpa(3.75)},
			{Roll: "123458"},
		},
	}}
}

func sampleCatalog() *catalog.SubjectCatalog {
	return catalog.NewSubjectCatalog([]catalog.Subject{
		{Code: "66611", Name: "Engineering Drawing", Semester: "1"},
		{Code: "66641", Name: "Digital Electronics", Semester: "4"},
	})
}

func TestBuildRowsJSONShape(t *testing.T) {
	rows := BuildRows(sampleRecords(), sampleCatalog())
	b, err := json.Marshal(rows)
	require.NoError(t, err)
	require.JSONEq(t, `[
  {"roll":"123456","referredSubjects":[
     {"code":"66611","status":"T","name":"Engineering Drawing","semester":"1"},
     {"code":"99999","status":"T,P","name":"Unknown Subject","semester":"Unknown Semester"}],
   "gpa":"N/A"},
  {"roll":"123457","referredSubjects":[],"gpa":3.75},
  {"roll":"123458","referredSubjects":[],"gpa":"N/A"}
]`, string(b))
}

func TestDisplayNamesUsesSemesterGate(t *testing.T) {
	s := models.StudentRecord{Roll: "1", ReferredSubjects: []models.SubjectReference{{Code: "66611"}, {Code: "66641"}, {Code: "00000"}}}
	require.Equal(t, []string{"Engineering Drawing (1)", "Unknown Subject", "Unknown Subject"}, DisplayNames(s, sampleCatalog(), "3"))
	require.Equal(t, []string{"Engineering Drawing (1)", "Digital Electronics (4)", "Unknown Subject"}, DisplayNames(s, sampleCatalog(), "4"))
}

func TestExpandStatus(t *testing.T) {
	cases := map[string]string{
		"T":      "Theory",
		"P":      "Practical",
		"T,P":    "Theory, Practical",
		" t , p": "Theory, Practical",
		"X":      "X",
	}
	for in, want := range cases {
		require.Equal(t, want, ExpandStatus(in), in)
	}
}

func TestSummary(t *testing.T) {
	recs := sampleRecords()
	require.Equal(t, []string{"1. 66611 (Theory)", "2. 99999 (Theory, Practical)"}, Summary(recs[0].Students[0]))
	require.Equal(t, []string{"3.75"}, Summary(recs[0].Students[1]))
	require.Empty(t, Summary(recs[0].Students[2]))
}

func TestWriteArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "upload-1")
	path, err := WriteArtifacts(dir, Bundle{
		Records:  sampleRecords(),
		Meta:     models.DocumentMeta{Semester: "4", Regulation: "2016"},
		Pages:    []string{"page one", "page two"},
		Subjects: sampleCatalog(),
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ResultsFile), path)

	for _, name := range []string{ResultsFile, RecordsFile, StudentsFile, PagesFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}

	var rows []map[string]any
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &rows))
	require.Len(t, rows, 3)
}
