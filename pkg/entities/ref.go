// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package entities holds the tenant and client model and the
// process-wide registry the authorization pipeline resolves against.
package entities

import "fmt"

// Ref identifies the declarative source an entity was loaded from.
// The loader uses it to replace or remove an entity when the source
// document changes or disappears.
type Ref interface {
	// Equal reports whether two references point at the same source.
	// References of different source kinds are never equal.
	Equal(other Ref) bool

	// String renders the reference for logs.
	String() string
}

// FileRef references a declarative document on disk. Two file
// references are equal iff their absolute paths match.
type FileRef struct {
	// Path is the absolute path of the YAML document.
	Path string
}

// Equal implements Ref.
func (r FileRef) Equal(other Ref) bool {
	o, ok := other.(FileRef)
	return ok && o.Path == r.Path
}

// String implements Ref.
func (r FileRef) String() string {
	return "file://" + r.Path
}

// KubernetesRef references a custom resource in the control plane. Two
// Kubernetes references are equal iff their UIDs match and either
// revision is empty or the revisions are equal.
type KubernetesRef struct {
	// UID is the stable object UID assigned by the API server.
	UID string

	// Revision is the resourceVersion of the observed object. Empty
	// matches any revision.
	Revision string
}

// Equal implements Ref.
func (r KubernetesRef) Equal(other Ref) bool {
	o, ok := other.(KubernetesRef)
	if !ok || o.UID != r.UID {
		return false
	}
	return r.Revision == "" || o.Revision == "" || r.Revision == o.Revision
}

// String implements Ref.
func (r KubernetesRef) String() string {
	if r.Revision == "" {
		return fmt.Sprintf("kubernetes://%s", r.UID)
	}
	return fmt.Sprintf("kubernetes://%s@%s", r.UID, r.Revision)
}
