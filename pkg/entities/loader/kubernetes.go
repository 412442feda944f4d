// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// Custom resource coordinates of the control plane.
var (
	tenantGVR = schema.GroupVersionResource{Group: "uitsmijter.io", Version: "v1", Resource: "tenants"}
	clientGVR = schema.GroupVersionResource{Group: "uitsmijter.io", Version: "v1", Resource: "clients"}
)

// informerResync is the shared informer resync period.
const informerResync = 10 * time.Minute

// KubernetesSource streams Tenant and Client custom resources from the
// cluster. The underlying reflector reconnects with backoff, so a
// broken watch heals without tearing the loader down.
type KubernetesSource struct {
	client    dynamic.Interface
	namespace string
}

// NewKubernetesSource connects to the cluster, in-cluster config first
// and kubeconfig as fallback. The namespace scopes the watch; empty
// watches the whole cluster.
func NewKubernetesSource(ctx context.Context, namespace string) (*KubernetesSource, error) {
	config, err := restConfig()
	if err != nil {
		return nil, err
	}

	client, err := backoff.Retry(ctx, func() (dynamic.Interface, error) {
		c, err := dynamic.NewForConfig(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create dynamic client: %w", err)
		}
		// Probe connectivity so a dead apiserver fails fast here
		// instead of inside the first watch.
		if _, err := c.Resource(tenantGVR).Namespace(namespace).List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
			return nil, fmt.Errorf("failed to reach control plane: %w", err)
		}
		return c, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(2*time.Minute))
	if err != nil {
		return nil, err
	}

	return &KubernetesSource{client: client, namespace: namespace}, nil
}

// NewKubernetesSourceWithClient wraps an existing dynamic client.
// Intended for tests.
func NewKubernetesSourceWithClient(client dynamic.Interface, namespace string) *KubernetesSource {
	return &KubernetesSource{client: client, namespace: namespace}
}

// restConfig loads the in-cluster config, falling back to kubeconfig.
func restConfig() (*rest.Config, error) {
	config, err := rest.InClusterConfig()
	if err == nil {
		return config, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate kubeconfig: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
	}
	return config, nil
}

// Run implements Source. Informers for both resources start together;
// their initial list arrives as added events, tenants first by virtue
// of the loader's pending-client handling.
func (s *KubernetesSource) Run(ctx context.Context, events chan<- Event) error {
	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(
		s.client, informerResync, s.namespace, nil,
	)

	for _, gvr := range []schema.GroupVersionResource{tenantGVR, clientGVR} {
		informer := factory.ForResource(gvr).Informer()
		if _, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
			AddFunc: func(obj any) {
				s.emit(ctx, events, SourceAdded, obj)
			},
			UpdateFunc: func(_, obj any) {
				s.emit(ctx, events, SourceModified, obj)
			},
			DeleteFunc: func(obj any) {
				s.emitDelete(ctx, events, obj)
			},
		}); err != nil {
			return fmt.Errorf("failed to register event handler: %w", err)
		}
	}

	factory.Start(ctx.Done())
	for gvr, synced := range factory.WaitForCacheSync(ctx.Done()) {
		if !synced {
			return fmt.Errorf("cache for %s never synced", gvr)
		}
	}
	logger.Info("control plane watch established")

	<-ctx.Done()
	return ctx.Err()
}

// emit converts a custom resource into a source event.
func (s *KubernetesSource) emit(ctx context.Context, events chan<- Event, kind EventKind, obj any) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return
	}

	doc, err := json.Marshal(u.Object)
	if err != nil {
		logger.Errorf("failed to serialize resource %s: %v", u.GetName(), err)
		return
	}

	event := Event{
		Kind: kind,
		Ref: entities.KubernetesRef{
			UID:      string(u.GetUID()),
			Revision: u.GetResourceVersion(),
		},
		Document: doc,
	}

	select {
	case events <- event:
	case <-ctx.Done():
	}
}

// emitDelete sends a deletion carrying only the UID: the revision is
// left empty so it matches whatever revision the registry holds.
func (s *KubernetesSource) emitDelete(ctx context.Context, events chan<- Event, obj any) {
	if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return
	}

	event := Event{
		Kind: SourceDeleted,
		Ref:  entities.KubernetesRef{UID: string(u.GetUID())},
	}

	select {
	case events <- event:
	case <-ctx.Done():
	}
}

// Compile-time interface check.
var _ Source = (*KubernetesSource)(nil)
