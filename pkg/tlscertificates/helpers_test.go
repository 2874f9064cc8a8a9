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
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/numtide/tls-relation-operator/pkg/pki"
	"github.com/numtide/tls-relation-operator/pkg/relation"
)

const (
	testRelationName = "certificates"
	testProviderApp  = "provider"
	testRemoteApp    = "provider"
	testUnit0        = "requirer/0"
	testUnit1        = "requirer/1"
)

// Key generation is slow enough to share one fixture set across the package.
var (
	fixtureOnce     sync.Once
	fixtureErr      error
	fixtureKeyPEM   []byte
	fixtureCAKeyPEM []byte
	fixtureCAPEM    []byte
)

func testFixtures(t *testing.T) (keyPEM, caPEM, caKeyPEM []byte) {
	t.Helper()
	fixtureOnce.Do(func() {
		if fixtureKeyPEM, fixtureErr = pki.GeneratePrivateKey(0); fixtureErr != nil {
			return
		}
		if fixtureCAKeyPEM, fixtureErr = pki.GeneratePrivateKey(0); fixtureErr != nil {
			return
		}
		fixtureCAPEM, fixtureErr = pki.GenerateCA(fixtureCAKeyPEM, "whatever-ca", pki.CAOptions{})
	})
	if fixtureErr != nil {
		t.Fatalf("generating test PKI fixtures: %v", fixtureErr)
	}
	return fixtureKeyPEM, fixtureCAPEM, fixtureCAKeyPEM
}

func newTestCSR(t *testing.T) string {
	t.Helper()
	keyPEM, _, _ := testFixtures(t)
	csr, err := pki.GenerateCSR(keyPEM, "banana.com", pki.CSROptions{})
	if err != nil {
		t.Fatalf("generating test CSR: %v", err)
	}
	return strings.TrimSpace(string(csr))
}

// issueTestCert signs a certificate for csrPEM expiring at notAfter.
func issueTestCert(t *testing.T, csrPEM string, notAfter time.Time) string {
	t.Helper()
	_, caPEM, caKeyPEM := testFixtures(t)

	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil {
		t.Fatal("decoding test CSR PEM")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		t.Fatalf("parsing test CSR: %v", err)
	}
	caCert, err := pki.ParseCertificate(caPEM)
	if err != nil {
		t.Fatalf("parsing test CA: %v", err)
	}
	keyBlock, _ := pem.Decode(caKeyPEM)
	caKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		t.Fatalf("parsing test CA key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      csr.Subject,
		NotBefore:    notAfter.Add(-24 * time.Hour),
		NotAfter:     notAfter,
	}
	derBytes, err := x509.CreateCertificate(rand.Reader, &template, caCert, csr.PublicKey, caKey)
	if err != nil {
		t.Fatalf("signing test certificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	return strings.TrimSpace(string(certPEM))
}

// declareCSRs writes a unit's requirer document directly into the store.
func declareCSRs(rel *relation.MemoryRelation, unit string, csrs ...string) {
	rel.AddUnit(unit)
	doc := RequirerDocument{CertificateSigningRequests: []CSREntry{}}
	for _, csr := range csrs {
		doc.CertificateSigningRequests = append(doc.CertificateSigningRequests, CSREntry{CertificateSigningRequest: csr})
	}
	writeRequirerDocument(rel.UnitData(unit), doc)
}

// publishRecords writes the provider document directly into the store.
func publishRecords(rel *relation.MemoryRelation, records ...CertificateRecord) {
	writeProviderDocument(rel.AppData(testProviderApp), ProviderDocument{Certificates: records})
}

func providerRecords(rel *relation.MemoryRelation) []CertificateRecord {
	return readProviderDocument(rel.AppData(testProviderApp)).Certificates
}
