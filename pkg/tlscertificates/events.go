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

import "time"

// Intent is a reconciliation outcome for the embedding application to act
// on. Intents are pure data; within one reconciliation pass they are ordered
// the way the algorithm produced them (creations before revocations on the
// provider side).
type Intent interface {
	intent()
}

// CertificateCreationRequested asks the provider application to issue a
// certificate for a newly pending CSR.
type CertificateCreationRequested struct {
	CertificateSigningRequest string
	RelationID                int
}

// CertificateRevocationRequested reports that a record was revoked because
// no unit claims its CSR any longer. It carries the full old record.
type CertificateRevocationRequested struct {
	Certificate               string
	CertificateSigningRequest string
	CA                        string
	Chain                     []string
}

// CertificateAvailable reports that the provider published a certificate for
// one of the local unit's CSRs.
type CertificateAvailable struct {
	Certificate               string
	CertificateSigningRequest string
	CA                        string
	Chain                     []string
}

// CertificateExpiring reports a certificate inside its expiry notification
// window.
type CertificateExpiring struct {
	Certificate string
	ExpiresAt   time.Time
}

// CertificateExpired reports a certificate past its validity window. The
// requirer withdraws the matching CSR itself after emitting this.
type CertificateExpired struct {
	Certificate string
}

func (CertificateCreationRequested) intent()   {}
func (CertificateRevocationRequested) intent() {}
func (CertificateAvailable) intent()           {}
func (CertificateExpiring) intent()            {}
func (CertificateExpired) intent()             {}
