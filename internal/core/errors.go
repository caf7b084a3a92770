package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// ErrExtraction groups fatal input problems found before any embedding call.
	ErrExtraction        = errors.New("extraction failed")
	ErrNoReadableContent = fmt.Errorf("%w: no readable content", ErrExtraction)
	ErrNoExtractableText = fmt.Errorf("%w: no extractable text", ErrExtraction)
	ErrEmptyText         = fmt.Errorf("%w: text input is empty", ErrExtraction)
	ErrNoChunks          = fmt.Errorf("%w: no chunks produced", ErrExtraction)

	// ErrIntegrity marks pipeline bugs rather than bad input.
	ErrIntegrity              = errors.New("integrity violation")
	ErrEmbeddingCountMismatch = fmt.Errorf("%w: embedding count mismatch", ErrIntegrity)
	ErrDimensionMismatch      = fmt.Errorf("%w: embedding dimension mismatch", ErrIntegrity)
)

// Validationf builds an ErrValidation with a message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
