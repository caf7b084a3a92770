package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
)

// ObjectClient keeps uploaded blobs in memory.
type ObjectClient struct {
	mu      sync.Mutex
	objects map[string][]byte

	FailUpload error
}

func NewObjectClient() *ObjectClient {
	return &ObjectClient{objects: make(map[string][]byte)}
}

func (o *ObjectClient) UploadFile(_ context.Context, key string, data []byte, _ string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.FailUpload != nil {
		return "", o.FailUpload
	}
	o.objects[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

func (o *ObjectClient) GetFile(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q: %w", key, core.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (o *ObjectClient) DeleteFile(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

// Has reports whether key was uploaded.
func (o *ObjectClient) Has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[key]
	return ok
}

var _ core.ObjectClient = (*ObjectClient)(nil)
