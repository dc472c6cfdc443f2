// Package catalog loads the static subject and student lookup tables that
// accompany a result sheet.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	UnknownSubject  = "Unknown Subject"
	UnknownSemester = "Unknown Semester"
)

// Semester accepts both "3" and 3 in the source JSON.
type Semester string

func (s *Semester) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Semester(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("semester must be string or number: %w", err)
	}
	*s = Semester(n.String())
	return nil
}

func (s Semester) Int() (int, bool) {
	return leadingInt(string(s))
}

type Subject struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Semester Semester `json:"semester"`
}

type SubjectCatalog struct {
	byCode map[string]Subject
}

func NewSubjectCatalog(subjects []Subject) *SubjectCatalog {
	c := &SubjectCatalog{byCode: make(map[string]Subject, len(subjects))}
	for _, s := range subjects {
		code := strings.TrimSpace(s.Code)
		if code == "" {
			continue
		}
		// first entry for a code wins, like a linear find over the list
		if _, ok := c.byCode[code]; ok {
			continue
		}
		s.Code = code
		c.byCode[code] = s
	}
	return c
}

func LoadSubjects(path string) (*SubjectCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subject catalog: %w", err)
	}
	var subjects []Subject
	if err := json.Unmarshal(b, &subjects); err != nil {
		return nil, fmt.Errorf("decode subject catalog: %w", err)
	}
	return NewSubjectCatalog(subjects), nil
}

func (c *SubjectCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byCode)
}

func (c *SubjectCatalog) Lookup(code string) (Subject, bool) {
	if c == nil {
		return Subject{}, false
	}
	s, ok := c.byCode[code]
	return s, ok
}

// Resolve renders the display name of a referred subject. Subjects from the
// reporting semester and every earlier one resolve; later or unknown codes do not.
func (c *SubjectCatalog) Resolve(code, reportingSemester string) string {
	s, ok := c.Lookup(code)
	if !ok {
		return UnknownSubject
	}
	own, ok := s.Semester.Int()
	if !ok {
		return UnknownSubject
	}
	reporting, ok := leadingInt(reportingSemester)
	if !ok || own > reporting {
		return UnknownSubject
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.Semester)
}

func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
