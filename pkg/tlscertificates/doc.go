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

// Package tlscertificates implements the tls_certificates relation protocol:
// a certificate request/issuance lifecycle carried over two
// independently-written relation documents.
//
// Each requirer unit declares its outstanding certificate signing requests in
// its unit databag; the provider's leader publishes issued certificates in
// the application databag. Provider and Requirer reconcile the diff between
// the two documents on every change notification and return intents — plain
// data values describing what became pending, available, expiring, expired,
// or orphaned. The embedding application owns delivery of those intents; the
// reconcilers never dispatch callbacks.
//
// Both reconcilers validate incoming documents against the interface JSON
// schemas before trusting them. A document that fails validation is treated
// as "no actionable data yet": the step logs and returns without intents or
// mutations, tolerating version skew between differently-rolled-out peers.
package tlscertificates
