// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package loader feeds the entity registry from declarative sources: a
// directory tree watched for changes, or the cluster's custom-resource
// stream. Both emit the same events and the loader applies them
// idempotently.
package loader

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/yaml"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// EventKind describes what happened to a source document.
type EventKind int

// Source event kinds.
const (
	SourceAdded EventKind = iota
	SourceModified
	SourceDeleted
)

// Event is one change observed by a source. Deleted events carry no
// document.
type Event struct {
	Kind     EventKind
	Ref      entities.Ref
	Document []byte
}

// Source streams declarative documents. Run blocks until the context
// is cancelled, emitting the current state first and changes after.
type Source interface {
	Run(ctx context.Context, events chan<- Event) error
}

// Loader applies source events to the registry. Tenants apply before
// the clients referencing them; a client whose tenant is missing is
// held pending and retried in arrival order whenever a tenant lands.
type Loader struct {
	store   *entities.Store
	pending []*entities.Client
}

// New creates a loader writing into the given registry.
func New(store *entities.Store) *Loader {
	return &Loader{store: store}
}

// Run consumes events from the sources until the context is cancelled.
// All sources share one apply goroutine, so the registry has a single
// mutator.
func (l *Loader) Run(ctx context.Context, sources ...Source) error {
	events := make(chan Event, 64)

	group, ctx := errgroup.WithContext(ctx)
	for _, source := range sources {
		group.Go(func() error {
			return source.Run(ctx, events)
		})
	}
	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case event := <-events:
				l.Apply(event)
			}
		}
	})

	return group.Wait()
}

// documentKind peeks at the kind field of a declarative document.
type documentKind struct {
	Kind string `json:"kind"`
}

// Apply processes one source event. Malformed documents are logged and
// skipped; they never tear down previously loaded state.
func (l *Loader) Apply(event Event) {
	if event.Kind == SourceDeleted {
		l.applyDelete(event.Ref)
		return
	}

	var head documentKind
	if err := yaml.Unmarshal(event.Document, &head); err != nil {
		logger.Errorf("skipping malformed document %s: %v", event.Ref, err)
		return
	}

	switch head.Kind {
	case "Tenant":
		l.applyTenant(event.Ref, event.Document)
	case "Client":
		l.applyClient(event.Ref, event.Document)
	default:
		logger.Warnf("skipping document %s with unknown kind %q", event.Ref, head.Kind)
	}
}

// applyTenant decodes and upserts a tenant, then retries pending
// clients that may have been waiting for it.
func (l *Loader) applyTenant(ref entities.Ref, doc []byte) {
	tenant, err := entities.DecodeTenant(ref, doc)
	if err != nil {
		logger.Errorf("skipping tenant document %s: %v", ref, err)
		return
	}

	// A renamed tenant under the same reference replaces the old one.
	if existing := l.store.TenantByRef(ref); existing != nil && existing.Name != tenant.Name {
		l.store.RemoveTenant(existing.Name)
	}

	if err := l.store.UpsertTenant(tenant); err != nil {
		logger.Errorf("rejecting tenant %s: %v", tenant.Name, err)
		return
	}
	logger.Infow("loaded tenant", "tenant", tenant.Name, "ref", ref.String())

	l.retryPending()
}

// applyClient decodes and upserts a client. An orphan goes to the
// pending list instead.
func (l *Loader) applyClient(ref entities.Ref, doc []byte) {
	client, err := entities.DecodeClient(ref, doc)
	if err != nil {
		logger.Errorf("skipping client document %s: %v", ref, err)
		return
	}
	l.upsertOrHold(client)
}

func (l *Loader) upsertOrHold(client *entities.Client) {
	if l.store.Tenant(client.Config.TenantName) == nil {
		l.holdPending(client)
		logger.Debugw("holding orphan client", "client", client.Name, "tenant", client.Config.TenantName)
		return
	}

	if err := l.store.UpsertClient(client); err != nil {
		logger.Errorf("rejecting client %s: %v", client.Name, err)
		return
	}
	logger.Infow("loaded client", "client", client.Name, "tenant", client.Config.TenantName)
}

// holdPending appends the client, replacing an earlier pending entry
// with the same reference so the latest document wins.
func (l *Loader) holdPending(client *entities.Client) {
	for i, held := range l.pending {
		if held.Ref != nil && client.Ref != nil && held.Ref.Equal(client.Ref) {
			l.pending[i] = client
			return
		}
	}
	l.pending = append(l.pending, client)
}

// retryPending re-applies held clients in arrival order. Clients whose
// tenant is still missing stay pending.
func (l *Loader) retryPending() {
	if len(l.pending) == 0 {
		return
	}

	held := l.pending
	l.pending = nil
	for _, client := range held {
		l.upsertOrHold(client)
	}
}

// applyDelete removes whichever entity carries the reference, pending
// clients included.
func (l *Loader) applyDelete(ref entities.Ref) {
	kept := l.pending[:0]
	for _, held := range l.pending {
		if held.Ref != nil && held.Ref.Equal(ref) {
			continue
		}
		kept = append(kept, held)
	}
	l.pending = kept

	if l.store.RemoveByRef(ref) {
		logger.Infow("removed entity", "ref", ref.String())
	}
}

// PendingCount reports how many orphan clients are held.
func (l *Loader) PendingCount() int {
	return len(l.pending)
}

// String renders an event kind for logs.
func (k EventKind) String() string {
	switch k {
	case SourceAdded:
		return "added"
	case SourceModified:
		return "modified"
	case SourceDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}
