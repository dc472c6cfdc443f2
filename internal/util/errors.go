package util

import "errors"

var (
	ErrNotPDF            = errors.New("uploaded file is not a PDF")
	ErrNoExtractableText = errors.New("no extractable text found in PDF")

	ErrUploadNotFound = errors.New("upload not found")
	ErrInvalidName    = errors.New("invalid entry name")
)
