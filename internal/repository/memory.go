package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryClient keeps the viewer sessions in the process memory. Used when there is no Redis configured.
type MemoryClient struct {
	mutex    sync.RWMutex
	sessions map[string][]byte
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{sessions: make(map[string][]byte)}
}

// Get returns nil, without error, when there is nothing stored at the key.
func (mc *MemoryClient) Get(_ context.Context, key string) (io.ReadCloser, error) {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	content, ok := mc.sessions[key]
	if !ok {
		return nil, nil
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (mc *MemoryClient) Put(_ context.Context, key string, payload io.Reader) error {
	content, err := io.ReadAll(payload)
	if err != nil {
		return fmt.Errorf("failed to read the payload: %w", err)
	}
	mc.mutex.Lock()
	mc.sessions[key] = content
	mc.mutex.Unlock()
	return nil
}

func (mc *MemoryClient) Delete(_ context.Context, key string) error {
	mc.mutex.Lock()
	delete(mc.sessions, key)
	mc.mutex.Unlock()
	return nil
}

func (*MemoryClient) Close() error {
	return nil
}
