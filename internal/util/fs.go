package util

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var pdfMagic = []byte("%PDF-")

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// SafeJoin joins a single path element onto root. Anything that is not a
// plain entry name, including "." and "..", is rejected.
func SafeJoin(root, name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return filepath.Join(root, name), nil
}

func HasPDFExt(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// HasPDFMagic checks the header bytes. Some writers put junk before the
// marker, so the first KiB is searched.
func HasPDFMagic(head []byte) bool {
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, pdfMagic)
}

// CheckPDFFile rejects files that are not PDFs by name or by content.
func CheckPDFFile(path string) error {
	if !HasPDFExt(path) {
		return fmt.Errorf("%s: %w", filepath.Base(path), ErrNotPDF)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	head := make([]byte, 1024)
	n, _ := f.Read(head)
	if !HasPDFMagic(head[:n]) {
		return fmt.Errorf("%s: %w", filepath.Base(path), ErrNotPDF)
	}
	return nil
}
