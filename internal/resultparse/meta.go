package resultparse

import (
	"regexp"

	"resultzone/internal/models"
)

var (
	semesterPattern   = regexp.MustCompile(`(?i)(\d+)(?:th|st|nd|rd)\s*Semester`)
	regulationPattern = regexp.MustCompile(`(?i)(\d{4})\s*Regulation`)
)

// ExtractMeta reads the semester number and regulation year printed on the
// sheet. Fields are left empty when the text does not mention them.
func ExtractMeta(text string) models.DocumentMeta {
	var meta models.DocumentMeta
	if m := semesterPattern.FindStringSubmatch(text); m != nil {
		meta.Semester = m[1]
	}
	if m := regulationPattern.FindStringSubmatch(text); m != nil {
		meta.Regulation = m[1]
	}
	return meta
}
