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
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/numtide/tls-relation-operator/pkg/pki"
	"github.com/numtide/tls-relation-operator/pkg/relation"
)

// DefaultExpiryNotificationTime is how long before expiry a certificate
// starts reporting CertificateExpiring (7 days).
const DefaultExpiryNotificationTime = 168 * time.Hour

// RequirerOptions configures optional Requirer behavior.
type RequirerOptions struct {
	// ExpiryNotificationTime is the window before expiry in which
	// CertificateExpiring intents are emitted. Defaults to
	// DefaultExpiryNotificationTime.
	ExpiryNotificationTime time.Duration
	// Clock supplies "now" for expiry checks. Defaults to the real clock.
	Clock clock.PassiveClock
	// Logger receives reconciliation logging. Defaults to logr.Discard().
	Logger logr.Logger
}

// Requirer reconciles the certificate-requesting side of the relation for a
// single unit, the only writer of that unit's document.
type Requirer struct {
	store        relation.Store
	relationName string
	unit         string
	remoteApp    string
	expiryWindow time.Duration
	clock        clock.PassiveClock
	log          logr.Logger
}

// NewRequirer returns a Requirer for the named relation. unit is the local
// unit's name; remoteApp is the provider application whose databag carries
// the provider document.
func NewRequirer(store relation.Store, relationName, unit, remoteApp string, opts RequirerOptions) *Requirer {
	window := opts.ExpiryNotificationTime
	if window <= 0 {
		window = DefaultExpiryNotificationTime
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Requirer{
		store:        store,
		relationName: relationName,
		unit:         unit,
		remoteApp:    remoteApp,
		expiryWindow: window,
		clock:        clk,
		log:          log.WithName("tls-requirer").WithValues("relation", relationName, "unit", unit),
	}
}

// localCSRs returns the unit's currently declared CSRs.
func (r *Requirer) localCSRs(rel relation.Relation) []string {
	return readRequirerDocument(rel.UnitData(r.unit)).CSRs()
}

// RequestCreation declares a CSR in the unit's document. Declaring an
// already-present CSR is a no-op.
func (r *Requirer) RequestCreation(csr string) error {
	rel, err := r.store.Relation(r.relationName)
	if err != nil {
		return fmt.Errorf("relation %q: %w", r.relationName, err)
	}
	csr = NormalizeCSR(csr)

	bag := rel.UnitData(r.unit)
	doc := readRequirerDocument(bag)
	for _, existing := range doc.CSRs() {
		if existing == csr {
			r.log.Info("certificate request already declared")
			return nil
		}
	}
	doc.CertificateSigningRequests = append(doc.CertificateSigningRequests, CSREntry{CertificateSigningRequest: csr})
	writeRequirerDocument(bag, doc)
	r.log.Info("certificate request sent to provider")
	return nil
}

// RequestRevocation withdraws a CSR from the unit's document. The provider
// is expected to drop the matching record and revoke the certificate.
// Withdrawing an absent CSR is a logged no-op.
func (r *Requirer) RequestRevocation(csr string) error {
	rel, err := r.store.Relation(r.relationName)
	if err != nil {
		return fmt.Errorf("relation %q: %w", r.relationName, err)
	}
	csr = NormalizeCSR(csr)

	bag := rel.UnitData(r.unit)
	doc := readRequirerDocument(bag)
	kept := make([]CSREntry, 0, len(doc.CertificateSigningRequests))
	for _, entry := range doc.CertificateSigningRequests {
		if NormalizeCSR(entry.CertificateSigningRequest) == csr {
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) == len(doc.CertificateSigningRequests) {
		r.log.Info("certificate request not declared, nothing to withdraw")
		return nil
	}
	writeRequirerDocument(bag, RequirerDocument{CertificateSigningRequests: kept})
	r.log.Info("certificate revocation sent to provider")
	return nil
}

// RequestRenewal withdraws oldCSR and declares newCSR. Failure to withdraw
// the old request (for example a briefly unavailable relation) is logged and
// does not block declaring the new one.
func (r *Requirer) RequestRenewal(oldCSR, newCSR string) error {
	if err := r.RequestRevocation(oldCSR); err != nil {
		r.log.Info("withdrawing old certificate request failed", "error", err.Error())
	}
	if err := r.RequestCreation(newCSR); err != nil {
		return err
	}
	r.log.Info("certificate renewal request completed")
	return nil
}

// HandleRelationChanged reconciles after a change to the provider document.
// It emits one CertificateAvailable intent per record matching a locally
// declared CSR. Re-delivery of the same state re-emits; consumers are
// expected to be idempotent. A torn-down relation or invalid provider
// document aborts the step without intents.
func (r *Requirer) HandleRelationChanged(relationID int) ([]Intent, error) {
	rel, err := r.store.RelationByID(r.relationName, relationID)
	if err != nil {
		r.log.Info("ignoring change on unknown relation", "relationID", relationID)
		return nil, nil
	}

	doc, ok := decodeProviderDocument(rel.AppData(r.remoteApp))
	if !ok {
		r.log.Info("provider document failed schema validation")
		return nil, nil
	}

	declared := sets.New(r.localCSRs(rel)...)
	var intents []Intent
	for _, record := range doc.Certificates {
		if !declared.Has(NormalizeCSR(record.CertificateSigningRequest)) {
			continue
		}
		intents = append(intents, CertificateAvailable{
			Certificate:               record.Certificate,
			CertificateSigningRequest: record.CertificateSigningRequest,
			CA:                        record.CA,
			Chain:                     record.Chain,
		})
	}
	return intents, nil
}

// HandleTick evaluates certificate expiry on the periodic host tick. "Now"
// is sampled once for the whole pass. An expired certificate emits
// CertificateExpired and has its CSR withdrawn; a certificate inside the
// notification window emits CertificateExpiring; anything else is silent.
func (r *Requirer) HandleTick() ([]Intent, error) {
	rel, err := r.store.Relation(r.relationName)
	if err != nil {
		r.log.Info("no relation, skipping expiry check")
		return nil, nil
	}

	doc, ok := decodeProviderDocument(rel.AppData(r.remoteApp))
	if !ok {
		r.log.Info("provider document failed schema validation")
		return nil, nil
	}

	now := r.clock.Now()
	var intents []Intent
	for _, record := range doc.Certificates {
		notAfter, err := pki.NotAfter([]byte(record.Certificate))
		if err != nil {
			r.log.Info("skipping unparsable certificate", "error", err.Error())
			continue
		}
		if now.After(notAfter) {
			r.log.Info("certificate is expired", "notAfter", notAfter)
			intents = append(intents, CertificateExpired{Certificate: record.Certificate})
			if err := r.RequestRevocation(record.CertificateSigningRequest); err != nil {
				r.log.Info("withdrawing expired certificate request failed", "error", err.Error())
			}
			continue
		}
		if notAfter.Sub(now) < r.expiryWindow {
			r.log.Info("certificate is about to expire", "notAfter", notAfter)
			intents = append(intents, CertificateExpiring{
				Certificate: record.Certificate,
				ExpiresAt:   notAfter,
			})
		}
	}
	return intents, nil
}
