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

import "strings"

// CSREntry is one declared certificate signing request in a requirer
// document.
type CSREntry struct {
	CertificateSigningRequest string `json:"certificate_signing_request"`
}

// RequirerDocument is a unit's declared set of outstanding requests. It is
// written only by that unit and read by the provider and by the unit itself.
type RequirerDocument struct {
	CertificateSigningRequests []CSREntry `json:"certificate_signing_requests"`
}

// CSRs returns the declared requests as trimmed PEM strings, in declaration
// order.
func (d RequirerDocument) CSRs() []string {
	out := make([]string, 0, len(d.CertificateSigningRequests))
	for _, e := range d.CertificateSigningRequests {
		out = append(out, NormalizeCSR(e.CertificateSigningRequest))
	}
	return out
}

// CertificateRecord is one issued certificate in a provider document. It is
// logically keyed by its certificate signing request: at most one record per
// CSR exists in a document at a time.
type CertificateRecord struct {
	CertificateSigningRequest string   `json:"certificate_signing_request"`
	Certificate               string   `json:"certificate"`
	CA                        string   `json:"ca"`
	Chain                     []string `json:"chain"`
}

// Equal reports full structural equality, chain order included.
func (r CertificateRecord) Equal(other CertificateRecord) bool {
	if r.CertificateSigningRequest != other.CertificateSigningRequest ||
		r.Certificate != other.Certificate ||
		r.CA != other.CA ||
		len(r.Chain) != len(other.Chain) {
		return false
	}
	for i := range r.Chain {
		if r.Chain[i] != other.Chain[i] {
			return false
		}
	}
	return true
}

// ProviderDocument is the provider application's set of issued certificates.
// It is written only by the provider leader and read by every requirer unit.
type ProviderDocument struct {
	Certificates []CertificateRecord `json:"certificates"`
}

// NormalizeCSR trims surrounding whitespace. CSRs are compared by exact
// string equality after normalization.
func NormalizeCSR(csr string) string {
	return strings.TrimSpace(csr)
}
