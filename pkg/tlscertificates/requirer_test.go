/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tlscertificates

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/numtide/tls-relation-operator/pkg/relation"
)

func newRequirerEnv(t *testing.T, opts RequirerOptions) (*relation.MemoryRelation, *Requirer) {
	t.Helper()
	store := relation.NewMemoryStore()
	rel := store.AddRelation(testRelationName, 0)
	rel.AddUnit(testUnit0)
	requirer := NewRequirer(store, testRelationName, testUnit0, testRemoteApp, opts)
	return rel, requirer
}

func declaredCSRs(rel *relation.MemoryRelation) []string {
	return readRequirerDocument(rel.UnitData(testUnit0)).CSRs()
}

func TestRequirerRequestCreationIsIdempotent(t *testing.T) {
	rel, requirer := newRequirerEnv(t, RequirerOptions{})

	for i := 0; i < 2; i++ {
		if err := requirer.RequestCreation("csr-a\n"); err != nil {
			t.Fatalf("RequestCreation() error = %v", err)
		}
	}

	if diff := cmp.Diff([]string{"csr-a"}, declaredCSRs(rel)); diff != "" {
		t.Errorf("declared CSRs (-want +got):\n%s", diff)
	}
}

func TestRequirerRequestCreationMissingRelation(t *testing.T) {
	store := relation.NewMemoryStore()
	requirer := NewRequirer(store, testRelationName, testUnit0, testRemoteApp, RequirerOptions{})

	err := requirer.RequestCreation("csr-a")
	if !errors.Is(err, relation.ErrRelationNotFound) {
		t.Errorf("RequestCreation() error = %v, want ErrRelationNotFound", err)
	}
}

func TestRequirerRequestRevocation(t *testing.T) {
	rel, requirer := newRequirerEnv(t, RequirerOptions{})
	if err := requirer.RequestCreation("csr-a"); err != nil {
		t.Fatalf("RequestCreation() error = %v", err)
	}
	if err := requirer.RequestCreation("csr-b"); err != nil {
		t.Fatalf("RequestCreation() error = %v", err)
	}

	if err := requirer.RequestRevocation("csr-a"); err != nil {
		t.Fatalf("RequestRevocation() error = %v", err)
	}
	if diff := cmp.Diff([]string{"csr-b"}, declaredCSRs(rel)); diff != "" {
		t.Errorf("declared CSRs after revocation (-want +got):\n%s", diff)
	}

	// Withdrawing something never declared is a no-op, not an error.
	if err := requirer.RequestRevocation("csr-unknown"); err != nil {
		t.Fatalf("RequestRevocation() of absent CSR error = %v", err)
	}
	if diff := cmp.Diff([]string{"csr-b"}, declaredCSRs(rel)); diff != "" {
		t.Errorf("declared CSRs after absent revocation (-want +got):\n%s", diff)
	}
}

func TestRequirerRequestRenewal(t *testing.T) {
	rel, requirer := newRequirerEnv(t, RequirerOptions{})
	if err := requirer.RequestCreation("csr-old"); err != nil {
		t.Fatalf("RequestCreation() error = %v", err)
	}

	if err := requirer.RequestRenewal("csr-old", "csr-new"); err != nil {
		t.Fatalf("RequestRenewal() error = %v", err)
	}
	if diff := cmp.Diff([]string{"csr-new"}, declaredCSRs(rel)); diff != "" {
		t.Errorf("declared CSRs after renewal (-want +got):\n%s", diff)
	}
}

func TestRequirerRequestRenewalOldAbsent(t *testing.T) {
	rel, requirer := newRequirerEnv(t, RequirerOptions{})

	if err := requirer.RequestRenewal("csr-old", "csr-new"); err != nil {
		t.Fatalf("RequestRenewal() error = %v", err)
	}
	if diff := cmp.Diff([]string{"csr-new"}, declaredCSRs(rel)); diff != "" {
		t.Errorf("declared CSRs after renewal (-want +got):\n%s", diff)
	}
}

func TestRequirerHandleRelationChanged(t *testing.T) {
	rel, requirer := newRequirerEnv(t, RequirerOptions{})
	if err := requirer.RequestCreation("csr-mine"); err != nil {
		t.Fatalf("RequestCreation() error = %v", err)
	}
	publishRecords(rel,
		CertificateRecord{CertificateSigningRequest: "csr-mine", Certificate: "cert-mine", CA: "ca", Chain: []string{"ca"}},
		CertificateRecord{CertificateSigningRequest: "csr-theirs", Certificate: "cert-theirs", CA: "ca", Chain: []string{"ca"}},
	)

	intents, err := requirer.HandleRelationChanged(0)
	if err != nil {
		t.Fatalf("HandleRelationChanged() error = %v", err)
	}
	want := []Intent{CertificateAvailable{
		Certificate:               "cert-mine",
		CertificateSigningRequest: "csr-mine",
		CA:                        "ca",
		Chain:                     []string{"ca"},
	}}
	if diff := cmp.Diff(want, intents); diff != "" {
		t.Errorf("HandleRelationChanged() intents (-want +got):\n%s", diff)
	}

	// Re-delivery of the same state re-emits the same intent.
	intents, err = requirer.HandleRelationChanged(0)
	if err != nil {
		t.Fatalf("HandleRelationChanged() redelivery error = %v", err)
	}
	if diff := cmp.Diff(want, intents); diff != "" {
		t.Errorf("HandleRelationChanged() redelivery intents (-want +got):\n%s", diff)
	}
}

func TestRequirerHandleRelationChangedInvalidProviderDocument(t *testing.T) {
	rel, requirer := newRequirerEnv(t, RequirerOptions{})
	if err := requirer.RequestCreation("csr-mine"); err != nil {
		t.Fatalf("RequestCreation() error = %v", err)
	}
	rel.AppData(testRemoteApp).Set(providerKey, `[{"certificate": "incomplete"}]`)

	intents, err := requirer.HandleRelationChanged(0)
	if err != nil {
		t.Fatalf("HandleRelationChanged() error = %v", err)
	}
	if intents != nil {
		t.Errorf("HandleRelationChanged() intents = %v, want none", intents)
	}
}

func TestRequirerHandleRelationChangedUnknownRelation(t *testing.T) {
	_, requirer := newRequirerEnv(t, RequirerOptions{})

	intents, err := requirer.HandleRelationChanged(7)
	if err != nil {
		t.Fatalf("HandleRelationChanged() error = %v", err)
	}
	if intents != nil {
		t.Errorf("HandleRelationChanged() intents = %v, want none", intents)
	}
}

func TestRequirerHandleTick(t *testing.T) {
	now := time.Now()
	rel, requirer := newRequirerEnv(t, RequirerOptions{
		Clock: clocktesting.NewFakePassiveClock(now),
	})

	expiredCSR := newTestCSR(t)
	expiringCSR := newTestCSR(t)
	healthyCSR := newTestCSR(t)
	expiredCert := issueTestCert(t, expiredCSR, now.Add(-time.Second))
	expiringCert := issueTestCert(t, expiringCSR, now.Add(time.Hour))
	healthyCert := issueTestCert(t, healthyCSR, now.Add(1000*time.Hour))

	for _, csr := range []string{expiredCSR, expiringCSR, healthyCSR} {
		if err := requirer.RequestCreation(csr); err != nil {
			t.Fatalf("RequestCreation() error = %v", err)
		}
	}
	publishRecords(rel,
		CertificateRecord{CertificateSigningRequest: expiredCSR, Certificate: expiredCert, CA: "ca"},
		CertificateRecord{CertificateSigningRequest: expiringCSR, Certificate: expiringCert, CA: "ca"},
		CertificateRecord{CertificateSigningRequest: healthyCSR, Certificate: healthyCert, CA: "ca"},
	)

	intents, err := requirer.HandleTick()
	if err != nil {
		t.Fatalf("HandleTick() error = %v", err)
	}

	if len(intents) != 2 {
		t.Fatalf("HandleTick() produced %d intents, want 2: %v", len(intents), intents)
	}
	expired, ok := intents[0].(CertificateExpired)
	if !ok || expired.Certificate != expiredCert {
		t.Errorf("intents[0] = %#v, want CertificateExpired for the expired certificate", intents[0])
	}
	expiring, ok := intents[1].(CertificateExpiring)
	if !ok || expiring.Certificate != expiringCert {
		t.Errorf("intents[1] = %#v, want CertificateExpiring for the expiring certificate", intents[1])
	}
	if ok && expiring.ExpiresAt.IsZero() {
		t.Error("CertificateExpiring.ExpiresAt is zero")
	}

	// The expired certificate's request is withdrawn; the others survive.
	if diff := cmp.Diff([]string{expiringCSR, healthyCSR}, declaredCSRs(rel)); diff != "" {
		t.Errorf("declared CSRs after tick (-want +got):\n%s", diff)
	}
}

func TestRequirerHandleTickCustomWindow(t *testing.T) {
	now := time.Now()
	rel, requirer := newRequirerEnv(t, RequirerOptions{
		ExpiryNotificationTime: time.Hour,
		Clock:                  clocktesting.NewFakePassiveClock(now),
	})

	csr := newTestCSR(t)
	cert := issueTestCert(t, csr, now.Add(2*time.Hour))
	if err := requirer.RequestCreation(csr); err != nil {
		t.Fatalf("RequestCreation() error = %v", err)
	}
	publishRecords(rel, CertificateRecord{CertificateSigningRequest: csr, Certificate: cert, CA: "ca"})

	// Two hours out with a one-hour window: nothing to report.
	intents, err := requirer.HandleTick()
	if err != nil {
		t.Fatalf("HandleTick() error = %v", err)
	}
	if len(intents) != 0 {
		t.Errorf("HandleTick() intents = %v, want none", intents)
	}
}

func TestRequirerHandleTickNoRelation(t *testing.T) {
	store := relation.NewMemoryStore()
	requirer := NewRequirer(store, testRelationName, testUnit0, testRemoteApp, RequirerOptions{})

	intents, err := requirer.HandleTick()
	if err != nil {
		t.Fatalf("HandleTick() error = %v", err)
	}
	if intents != nil {
		t.Errorf("HandleTick() intents = %v, want none", intents)
	}
}
