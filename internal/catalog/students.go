package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const NoStudentFound = "No student found"

type Student struct {
	Roll string `json:"roll"`
	Name string `json:"name"`
}

type StudentDirectory struct {
	byRoll map[string]string
}

func NewStudentDirectory(students []Student) *StudentDirectory {
	d := &StudentDirectory{byRoll: make(map[string]string, len(students))}
	for _, s := range students {
		roll := strings.TrimSpace(s.Roll)
		if roll == "" {
			continue
		}
		if _, ok := d.byRoll[roll]; ok {
			continue
		}
		d.byRoll[roll] = strings.TrimSpace(s.Name)
	}
	return d
}

func LoadStudents(path string) (*StudentDirectory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read student directory: %w", err)
	}
	var students []Student
	if err := json.Unmarshal(b, &students); err != nil {
		return nil, fmt.Errorf("decode student directory: %w", err)
	}
	return NewStudentDirectory(students), nil
}

func (d *StudentDirectory) Name(roll string) string {
	if d == nil {
		return NoStudentFound
	}
	if name, ok := d.byRoll[roll]; ok {
		return name
	}
	return NoStudentFound
}
