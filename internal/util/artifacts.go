package util

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// writeAtomic writes through a temp file in the target directory and renames
// it into place, so readers never observe a half-written export.
func writeAtomic(path, pattern string, write func(w io.Writer) error) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), pattern)
	if err != nil {
		return fmt.Errorf("create temp %s: %w", filepath.Base(path), err)
	}
	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp %s: %w", filepath.Base(path), err)
	}
	return nil
}

func WriteJSONAtomic(path string, v any) error {
	return writeAtomic(path, "tmp-*.json", func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	})
}

func WriteJSONLinesAtomic[T any](path string, rows []T) error {
	return writeAtomic(path, "tmp-*.jsonl", func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for i, row := range rows {
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("encode row %d: %w", i, err)
			}
		}
		return nil
	})
}

func WriteTextAtomic(path string, content string) error {
	return writeAtomic(path, "tmp-*.txt", func(w io.Writer) error {
		if _, err := io.WriteString(w, content); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
		return nil
	})
}
