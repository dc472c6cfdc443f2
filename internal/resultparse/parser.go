// Package resultparse turns the raw text of a result sheet page into
// institute and student records.
package resultparse

import (
	"regexp"
	"strconv"
	"strings"

	"resultzone/internal/models"
)

var (
	institutePattern = regexp.MustCompile(`(?i)(\d{5})\s*-\s*([^,]+),\s*([a-zA-Z\s]+)`)
	rollBracePattern = regexp.MustCompile(`(\d{6})\s*\{\s*([^}]*)\s*\}`)
	rollGPAPattern   = regexp.MustCompile(`(\d{6})\s*\(\s*([\d.]+)\s*\)`)
	subjectPattern   = regexp.MustCompile(`(\d{5})\s*\(([^)]+)\)`)
)

type entryKind int

const (
	kindSubjects entryKind = iota + 1
	kindGPA
	kindBoth
)

// rollEntry is what the two passes learned about one roll before the merge.
type rollEntry struct {
	kind     entryKind
	subjects []models.SubjectReference
	gpa      float64
}

type rollTable struct {
	order   []string
	entries map[string]*rollEntry
}

func newRollTable() *rollTable {
	return &rollTable{entries: map[string]*rollEntry{}}
}

func (t *rollTable) get(roll string) *rollEntry {
	e, ok := t.entries[roll]
	if !ok {
		e = &rollEntry{}
		t.entries[roll] = e
		t.order = append(t.order, roll)
	}
	return e
}

// Parse extracts a single institute record from page text. It never fails:
// a missing header yields the Unknown sentinels and missing rolls an empty list.
func Parse(text string) models.InstituteRecord {
	return ParsePage(text, 0)
}

// ParsePage is Parse with page stamped onto the returned record.
func ParsePage(text string, page int) models.InstituteRecord {
	rec := models.InstituteRecord{
		InstitutionCode: models.UnknownCode,
		InstitutionName: models.UnknownInstitution,
		District:        models.UnknownDistrict,
		Page:            page,
	}
	if m := institutePattern.FindStringSubmatch(text); m != nil {
		rec.InstitutionCode = strings.TrimSpace(m[1])
		rec.InstitutionName = strings.TrimSpace(m[2])
		rec.District = strings.TrimSpace(m[3])
	}

	table := newRollTable()
	scanSubjects(text, table)
	scanGPAs(text, table)
	rec.Students = merge(table)
	return rec
}

func scanSubjects(text string, table *rollTable) {
	for _, m := range rollBracePattern.FindAllStringSubmatch(text, -1) {
		subjects := parseSubjects(strings.TrimSpace(m[2]))
		e := table.get(m[1])
		// a later brace block for the same roll replaces the earlier one
		e.subjects = subjects
		switch e.kind {
		case kindGPA, kindBoth:
			e.kind = kindBoth
		default:
			e.kind = kindSubjects
		}
	}
}

func parseSubjects(payload string) []models.SubjectReference {
	matches := subjectPattern.FindAllStringSubmatch(payload, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]models.SubjectReference, 0, len(matches))
	for _, m := range matches {
		out = append(out, models.SubjectReference{Code: m[1], Status: strings.TrimSpace(m[2])})
	}
	return out
}

func scanGPAs(text string, table *rollTable) {
	for _, m := range rollGPAPattern.FindAllStringSubmatch(text, -1) {
		v, ok := leadingFloat(m[2])
		if !ok {
			continue
		}
		e := table.get(m[1])
		switch e.kind {
		case kindGPA, kindBoth:
			// first GPA for a roll wins
		case kindSubjects:
			e.kind = kindBoth
			e.gpa = v
		default:
			e.kind = kindGPA
			e.gpa = v
		}
	}
}

// merge applies the precedence rule: a GPA marks the roll as passed and
// discards any referred subject list found for it.
func merge(table *rollTable) []models.StudentRecord {
	out := make([]models.StudentRecord, 0, len(table.order))
	for _, roll := range table.order {
		e := table.entries[roll]
		if e.kind == 0 {
			continue
		}
		s := models.StudentRecord{Roll: roll}
		switch e.kind {
		case kindGPA, kindBoth:
			gpa := e.gpa
			s.GPA = &gpa
		case kindSubjects:
			if len(e.subjects) > 0 {
				s.ReferredSubjects = e.subjects
			}
		}
		out = append(out, s)
	}
	return out
}

// leadingFloat reads the longest decimal prefix of s ("3.75.1" reads as 3.75).
func leadingFloat(s string) (float64, bool) {
	end := len(s)
	if first := strings.IndexByte(s, '.'); first >= 0 {
		if second := strings.IndexByte(s[first+1:], '.'); second >= 0 {
			end = first + 1 + second
		}
	}
	s = strings.TrimSuffix(s[:end], ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Empty reports whether a record carries neither a header nor any student,
// which is what blank or cover pages look like.
func Empty(rec models.InstituteRecord) bool {
	return rec.InstitutionCode == models.UnknownCode &&
		rec.InstitutionName == models.UnknownInstitution &&
		rec.District == models.UnknownDistrict &&
		len(rec.Students) == 0
}
