package core

import (
	"context"
)

// DocumentConverter extracts plain text from a binary document.
// The contentType hint helps the converter choose the right parsing strategy.
type DocumentConverter interface {
	Convert(ctx context.Context, data []byte, contentType string) (string, error)
}
