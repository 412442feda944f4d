// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// Subdirectories of the resources root holding the two document kinds.
const (
	tenantsDir = "Tenants"
	clientsDir = "Clients"
)

// FileSource loads declarative documents from a directory tree and
// watches it for changes. Tenants/ is walked before Clients/ so the
// initial load applies tenants first.
type FileSource struct {
	root string
}

// NewFileSource creates a source rooted at the given resources path.
func NewFileSource(root string) *FileSource {
	return &FileSource{root: root}
}

// isDocument reports whether a file name looks like a declarative
// document.
func isDocument(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Run implements Source. The initial tree is emitted as added events,
// then filesystem notifications stream until the context ends.
func (s *FileSource) Run(ctx context.Context, events chan<- Event) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer watcher.Close()

	for _, sub := range []string{tenantsDir, clientsDir} {
		dir := filepath.Join(s.root, sub)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			logger.Warnf("resources directory %s does not exist", dir)
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		if err := s.emitInitial(ctx, dir, events); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleFsEvent(ctx, event, events)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("filesystem watcher error: %v", err)
		}
	}
}

// emitInitial walks one directory and emits every document found.
func (s *FileSource) emitInitial(ctx context.Context, dir string, events chan<- Event) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isDocument(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := s.emitFile(ctx, SourceAdded, path, events); err != nil {
			logger.Errorf("skipping %s: %v", path, err)
		}
	}
	return nil
}

// handleFsEvent translates one filesystem notification.
func (s *FileSource) handleFsEvent(ctx context.Context, event fsnotify.Event, events chan<- Event) {
	if !isDocument(event.Name) {
		return
	}

	path, err := filepath.Abs(event.Name)
	if err != nil {
		path = event.Name
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		if err := s.emitFile(ctx, SourceAdded, path, events); err != nil {
			logger.Errorf("failed to load created file %s: %v", path, err)
		}
	case event.Op.Has(fsnotify.Write):
		if err := s.emitFile(ctx, SourceModified, path, events); err != nil {
			logger.Errorf("failed to load modified file %s: %v", path, err)
		}
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		s.send(ctx, events, Event{Kind: SourceDeleted, Ref: entities.FileRef{Path: path}})
	}
}

// emitFile reads a document and sends it downstream.
func (s *FileSource) emitFile(ctx context.Context, kind EventKind, path string, events chan<- Event) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	doc, err := os.ReadFile(abs)
	if err != nil {
		return err
	}

	s.send(ctx, events, Event{
		Kind:     kind,
		Ref:      entities.FileRef{Path: abs},
		Document: doc,
	})
	return nil
}

func (s *FileSource) send(ctx context.Context, events chan<- Event, event Event) {
	select {
	case events <- event:
	case <-ctx.Done():
	}
}

// Compile-time interface check.
var _ Source = (*FileSource)(nil)
