// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
)

const tenantDoc = `
apiVersion: uitsmijter.io/v1
kind: Tenant
metadata:
  name: shire
spec:
  hosts:
    - example.com
`

func clientDoc(name, tenant, ident string) []byte {
	return []byte(fmt.Sprintf(`
apiVersion: uitsmijter.io/v1
kind: Client
metadata:
  name: %s
spec:
  ident: %s
  tenantname: %s
  redirect_urls:
    - https://.*\.example\.com/.*
`, name, ident, tenant))
}

const identA = "f9e34acc-3b11-4c22-9907-9f3d2d22bb47"
const identB = "0c3c693a-47a1-4be6-80ad-64e851154e3c"

func ref(path string) entities.FileRef {
	return entities.FileRef{Path: path}
}

func TestApplyTenantThenClient(t *testing.T) {
	t.Parallel()

	store := entities.NewStore()
	l := New(store)

	l.Apply(Event{Kind: SourceAdded, Ref: ref("/t/shire.yaml"), Document: []byte(tenantDoc)})
	l.Apply(Event{Kind: SourceAdded, Ref: ref("/c/app.yaml"), Document: clientDoc("app", "shire", identA)})

	require.NotNil(t, store.Tenant("shire"))
	require.NotNil(t, store.Client(identA))
	assert.Equal(t, 0, l.PendingCount())
}

func TestOrphanClientHeldUntilTenantArrives(t *testing.T) {
	t.Parallel()

	store := entities.NewStore()
	l := New(store)

	// Clients arrive before their tenant.
	l.Apply(Event{Kind: SourceAdded, Ref: ref("/c/app.yaml"), Document: clientDoc("app", "shire", identA)})
	l.Apply(Event{Kind: SourceAdded, Ref: ref("/c/web.yaml"), Document: clientDoc("web", "shire", identB)})

	assert.Nil(t, store.Client(identA))
	assert.Equal(t, 2, l.PendingCount())

	l.Apply(Event{Kind: SourceAdded, Ref: ref("/t/shire.yaml"), Document: []byte(tenantDoc)})

	assert.NotNil(t, store.Client(identA))
	assert.NotNil(t, store.Client(identB))
	assert.Equal(t, 0, l.PendingCount())
}

func TestOrphanForDifferentTenantStaysPending(t *testing.T) {
	t.Parallel()

	store := entities.NewStore()
	l := New(store)

	l.Apply(Event{Kind: SourceAdded, Ref: ref("/c/app.yaml"), Document: clientDoc("app", "mordor", identA)})
	l.Apply(Event{Kind: SourceAdded, Ref: ref("/t/shire.yaml"), Document: []byte(tenantDoc)})

	assert.Nil(t, store.Client(identA))
	assert.Equal(t, 1, l.PendingCount())
}

func TestMalformedDocumentIsSkipped(t *testing.T) {
	t.Parallel()

	store := entities.NewStore()
	l := New(store)

	l.Apply(Event{Kind: SourceAdded, Ref: ref("/t/shire.yaml"), Document: []byte(tenantDoc)})
	l.Apply(Event{Kind: SourceModified, Ref: ref("/t/broken.yaml"), Document: []byte("kind: Tenant\nspec: [")})
	l.Apply(Event{Kind: SourceAdded, Ref: ref("/x/unknown.yaml"), Document: []byte("kind: Gadget")})

	// Previously loaded state is untouched.
	assert.NotNil(t, store.Tenant("shire"))
	assert.Equal(t, 1, store.TenantCount())
}

func TestModifiedDocumentReplaces(t *testing.T) {
	t.Parallel()

	store := entities.NewStore()
	l := New(store)

	l.Apply(Event{Kind: SourceAdded, Ref: ref("/t/shire.yaml"), Document: []byte(tenantDoc)})

	const updated = `
kind: Tenant
metadata:
  name: shire
spec:
  hosts:
    - example.com
    - www.example.com
`
	l.Apply(Event{Kind: SourceModified, Ref: ref("/t/shire.yaml"), Document: []byte(updated)})

	tenant := store.Tenant("shire")
	require.NotNil(t, tenant)
	assert.Len(t, tenant.Config.Hosts, 2)
	assert.Equal(t, 1, store.TenantCount())
}

func TestRenamedTenantUnderSameRef(t *testing.T) {
	t.Parallel()

	store := entities.NewStore()
	l := New(store)

	l.Apply(Event{Kind: SourceAdded, Ref: ref("/t/one.yaml"), Document: []byte(tenantDoc)})

	const renamed = `
kind: Tenant
metadata:
  name: mordor
spec:
  hosts:
    - example.com
`
	l.Apply(Event{Kind: SourceModified, Ref: ref("/t/one.yaml"), Document: []byte(renamed)})

	assert.Nil(t, store.Tenant("shire"))
	assert.NotNil(t, store.Tenant("mordor"))
	assert.Equal(t, 1, store.TenantCount())
}

func TestDeleteByRef(t *testing.T) {
	t.Parallel()

	store := entities.NewStore()
	l := New(store)

	l.Apply(Event{Kind: SourceAdded, Ref: ref("/t/shire.yaml"), Document: []byte(tenantDoc)})
	l.Apply(Event{Kind: SourceAdded, Ref: ref("/c/app.yaml"), Document: clientDoc("app", "shire", identA)})

	l.Apply(Event{Kind: SourceDeleted, Ref: ref("/c/app.yaml")})
	assert.Nil(t, store.Client(identA))
	assert.NotNil(t, store.Tenant("shire"))

	l.Apply(Event{Kind: SourceDeleted, Ref: ref("/t/shire.yaml")})
	assert.Nil(t, store.Tenant("shire"))
}

func TestDeleteDropsPendingClient(t *testing.T) {
	t.Parallel()

	store := entities.NewStore()
	l := New(store)

	l.Apply(Event{Kind: SourceAdded, Ref: ref("/c/app.yaml"), Document: clientDoc("app", "shire", identA)})
	require.Equal(t, 1, l.PendingCount())

	l.Apply(Event{Kind: SourceDeleted, Ref: ref("/c/app.yaml")})
	assert.Equal(t, 0, l.PendingCount())

	// The tenant arriving later must not resurrect the deleted client.
	l.Apply(Event{Kind: SourceAdded, Ref: ref("/t/shire.yaml"), Document: []byte(tenantDoc)})
	assert.Nil(t, store.Client(identA))
}

func TestLatestPendingDocumentWins(t *testing.T) {
	t.Parallel()

	store := entities.NewStore()
	l := New(store)

	l.Apply(Event{Kind: SourceAdded, Ref: ref("/c/app.yaml"), Document: clientDoc("first", "shire", identA)})
	l.Apply(Event{Kind: SourceModified, Ref: ref("/c/app.yaml"), Document: clientDoc("second", "shire", identA)})
	require.Equal(t, 1, l.PendingCount())

	l.Apply(Event{Kind: SourceAdded, Ref: ref("/t/shire.yaml"), Document: []byte(tenantDoc)})

	client := store.Client(identA)
	require.NotNil(t, client)
	assert.Equal(t, "second", client.Name)
}
