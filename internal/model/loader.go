package model

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/Brownie44l1/waste-api/internal/classify"
)

// Loader produces a ready model handle from the configured asset location.
type Loader interface {
	Load(ctx context.Context) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Model, error)

func (f LoaderFunc) Load(ctx context.Context) (Model, error) { return f(ctx) }

// FileLoader opens an ONNX model and its metadata from disk.
type FileLoader struct {
	ModelPath         string
	MetadataPath      string
	SharedLibraryPath string
}

func (l FileLoader) Load(ctx context.Context) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	md, err := LoadMetadata(l.MetadataPath)
	if err != nil {
		return nil, err
	}
	return NewONNXModel(l.ModelPath, md, l.SharedLibraryPath)
}

// SharedLoader loads through next once and hands the same read-only model to
// every caller afterwards. Failed loads are not remembered.
type SharedLoader struct {
	next   Loader
	logger *zap.Logger

	mu    sync.Mutex
	model Model
}

func NewSharedLoader(next Loader, logger *zap.Logger) *SharedLoader {
	return &SharedLoader{next: next, logger: logger.Named("model_loader")}
}

func (l *SharedLoader) Load(ctx context.Context) (Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model != nil {
		return l.model, nil
	}
	m, err := l.next.Load(ctx)
	if err != nil {
		l.logger.Error("model load failed", zap.Error(err))
		return nil, err
	}
	l.logger.Info("model loaded", zap.Strings("classes", classify.Labels[:]))
	l.model = m
	return m, nil
}

// Loaded reports whether a model is held.
func (l *SharedLoader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.model != nil
}

// Close releases the held model when it supports closing.
func (l *SharedLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model == nil {
		return nil
	}
	var err error
	if c, ok := l.model.(io.Closer); ok {
		err = c.Close()
	}
	l.model = nil
	return err
}
