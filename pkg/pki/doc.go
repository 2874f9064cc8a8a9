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

// Package pki provides the cryptographic primitives used around the
// tls_certificates relation: RSA key, CSR, CA and leaf certificate
// generation, plus PFX packaging for consumers that need PKCS#12.
//
// Everything crosses the package boundary as PEM bytes; only PFX output is
// binary, and it is produced for external consumption, never placed on the
// wire documents. The reconcilers treat this package as an opaque adapter.
package pki
