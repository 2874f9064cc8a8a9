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
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/numtide/tls-relation-operator/pkg/relation"
)

// ProviderOptions configures optional Provider behavior.
type ProviderOptions struct {
	// Logger receives reconciliation logging. Defaults to logr.Discard().
	Logger logr.Logger
}

// Provider reconciles the certificate-issuing side of the relation. It is
// expected to run on the provider application's leader, the only writer of
// the provider document.
type Provider struct {
	store        relation.Store
	relationName string
	app          string
	log          logr.Logger
}

// NewProvider returns a Provider for the named relation. app is the provider
// application's own name, the owner of the application databag carrying the
// provider document.
func NewProvider(store relation.Store, relationName, app string, opts ProviderOptions) *Provider {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Provider{
		store:        store,
		relationName: relationName,
		app:          app,
		log:          log.WithName("tls-provider").WithValues("relation", relationName),
	}
}

// PendingRequests returns the CSRs declared by any unit of the relation for
// which no certificate record exists yet. Duplicate declarations across
// units collapse to one entry; order is stable by unit name, then by each
// unit's declaration order. Units whose document fails validation contribute
// nothing.
func (p *Provider) PendingRequests(relationID int) ([]string, error) {
	rel, err := p.store.RelationByID(p.relationName, relationID)
	if err != nil {
		return nil, fmt.Errorf("relation %q id %d: %w", p.relationName, relationID, err)
	}
	return p.pendingRequests(rel), nil
}

func (p *Provider) pendingRequests(rel relation.Relation) []string {
	recorded := sets.New[string]()
	for _, record := range readProviderDocument(rel.AppData(p.app)).Certificates {
		recorded.Insert(NormalizeCSR(record.CertificateSigningRequest))
	}

	seen := sets.New[string]()
	var pending []string
	for _, unit := range rel.Units() {
		doc, ok := decodeRequirerDocument(rel.UnitData(unit))
		if !ok {
			p.log.Info("skipping unit with invalid requirer document", "unit", unit)
			continue
		}
		for _, csr := range doc.CSRs() {
			if seen.Has(csr) || recorded.Has(csr) {
				continue
			}
			seen.Insert(csr)
			pending = append(pending, csr)
		}
	}
	return pending
}

// Issue publishes a certificate for a CSR on the given relation instance.
// An existing record for the same CSR is replaced, whatever its contents;
// re-submitting a byte-identical record leaves exactly one record in place.
func (p *Provider) Issue(certificate, csr, ca string, chain []string, relationID int) error {
	rel, err := p.store.RelationByID(p.relationName, relationID)
	if err != nil {
		return fmt.Errorf("relation %q id %d: %w", p.relationName, relationID, err)
	}

	record := CertificateRecord{
		CertificateSigningRequest: NormalizeCSR(csr),
		Certificate:               strings.TrimSpace(certificate),
		CA:                        strings.TrimSpace(ca),
		Chain:                     make([]string, 0, len(chain)),
	}
	for _, c := range chain {
		record.Chain = append(record.Chain, strings.TrimSpace(c))
	}

	bag := rel.AppData(p.app)
	doc := readProviderDocument(bag)
	kept := make([]CertificateRecord, 0, len(doc.Certificates)+1)
	replaced := false
	for _, existing := range doc.Certificates {
		if NormalizeCSR(existing.CertificateSigningRequest) == record.CertificateSigningRequest {
			replaced = true
			continue
		}
		kept = append(kept, existing)
	}
	kept = append(kept, record)
	writeProviderDocument(bag, ProviderDocument{Certificates: kept})

	if replaced {
		p.log.Info("replaced certificate record", "relationID", rel.ID())
	} else {
		p.log.Info("added certificate record", "relationID", rel.ID())
	}
	return nil
}

// RemoveCertificate removes any record carrying the given certificate bytes
// from every instance of the relation.
func (p *Provider) RemoveCertificate(certificate string) error {
	rels := p.store.Relations(p.relationName)
	if len(rels) == 0 {
		return fmt.Errorf("relation %q: %w", p.relationName, relation.ErrRelationNotFound)
	}
	certificate = strings.TrimSpace(certificate)
	for _, rel := range rels {
		bag := rel.AppData(p.app)
		doc := readProviderDocument(bag)
		kept := make([]CertificateRecord, 0, len(doc.Certificates))
		for _, record := range doc.Certificates {
			if strings.TrimSpace(record.Certificate) == certificate {
				continue
			}
			kept = append(kept, record)
		}
		if len(kept) != len(doc.Certificates) {
			writeProviderDocument(bag, ProviderDocument{Certificates: kept})
		}
	}
	return nil
}

// RevokeOrphans removes every record whose CSR is no longer claimed by any
// unit of the relation, emitting one revocation intent per removed record.
// All orphans found are processed in a single pass.
func (p *Provider) RevokeOrphans(relationID int) ([]Intent, error) {
	rel, err := p.store.RelationByID(p.relationName, relationID)
	if err != nil {
		return nil, fmt.Errorf("relation %q id %d: %w", p.relationName, relationID, err)
	}
	return p.revokeOrphans(rel), nil
}

func (p *Provider) revokeOrphans(rel relation.Relation) []Intent {
	claimed := sets.New[string]()
	for _, unit := range rel.Units() {
		doc, ok := decodeRequirerDocument(rel.UnitData(unit))
		if !ok {
			continue
		}
		claimed.Insert(doc.CSRs()...)
	}

	bag := rel.AppData(p.app)
	doc := readProviderDocument(bag)
	kept := make([]CertificateRecord, 0, len(doc.Certificates))
	var intents []Intent
	for _, record := range doc.Certificates {
		if claimed.Has(NormalizeCSR(record.CertificateSigningRequest)) {
			kept = append(kept, record)
			continue
		}
		p.log.Info("revoking orphaned certificate", "relationID", rel.ID())
		intents = append(intents, CertificateRevocationRequested{
			Certificate:               record.Certificate,
			CertificateSigningRequest: record.CertificateSigningRequest,
			CA:                        record.CA,
			Chain:                     record.Chain,
		})
	}
	if len(kept) != len(doc.Certificates) {
		writeProviderDocument(bag, ProviderDocument{Certificates: kept})
	}
	return intents
}

// HandleRelationChanged reconciles after a change to the given unit's
// databag. It emits one creation intent per newly pending CSR across the
// whole relation, then revokes orphaned records. A torn-down relation or an
// invalid triggering document aborts the step without intents or mutations.
func (p *Provider) HandleRelationChanged(relationID int, unit string) ([]Intent, error) {
	rel, err := p.store.RelationByID(p.relationName, relationID)
	if err != nil {
		p.log.Info("ignoring change on unknown relation", "relationID", relationID)
		return nil, nil
	}

	if _, ok := decodeRequirerDocument(rel.UnitData(unit)); !ok {
		p.log.Info("requirer document failed schema validation", "unit", unit)
		return nil, nil
	}

	var intents []Intent
	for _, csr := range p.pendingRequests(rel) {
		intents = append(intents, CertificateCreationRequested{
			CertificateSigningRequest: csr,
			RelationID:                rel.ID(),
		})
	}
	intents = append(intents, p.revokeOrphans(rel)...)
	return intents, nil
}
