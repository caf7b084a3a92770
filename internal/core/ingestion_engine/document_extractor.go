package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"

	"code.sajari.com/docconv"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
)

// DocconvConverter implements core.DocumentConverter using sajari/docconv.
type DocconvConverter struct {
	useReadability bool
}

func NewDocconvConverter(useReadability bool) *DocconvConverter {
	return &DocconvConverter{useReadability: useReadability}
}

func (c *DocconvConverter) Convert(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := docconv.Convert(bytes.NewReader(data), contentType, c.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv: extraction failed for content type %q: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return res.Body, nil
}

var _ core.DocumentConverter = (*DocconvConverter)(nil)
