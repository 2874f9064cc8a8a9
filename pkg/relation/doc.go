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

// Package relation models the replicated relation data store the
// reconcilers operate against.
//
// A relation is a named link between two applications. Every participant
// (each unit, plus one application-wide entry per side) owns a flat
// string-keyed databag that only it may write and that every participant may
// read. Reconcilers receive a Store at construction, which keeps them
// independent of any particular host runtime: production embeds a
// runtime-backed Store, tests use MemoryStore.
package relation
