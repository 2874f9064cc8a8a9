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

package relation

import "errors"

// ErrRelationNotFound is returned when a mutating operation is attempted
// against a relation that does not exist. It indicates an ordering error by
// the embedding application and is never swallowed by the reconcilers.
var ErrRelationNotFound = errors.New("relation not found")

// Databag is a mutable view over one participant's portion of the relation
// data. Values are opaque strings; higher layers decide how to encode them.
type Databag interface {
	// Get returns the value stored under key and whether it was present.
	Get(key string) (string, bool)
	// Set stores value under key, replacing any previous value.
	Set(key, value string)
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(key string)
	// Snapshot returns a copy of the whole databag. Mutating the returned
	// map does not affect the store.
	Snapshot() map[string]string
}

// Relation is one instance of a named relation between two applications.
type Relation interface {
	// ID is the instance identifier, unique per relation name.
	ID() int
	// Units lists the remote unit names currently joined to the relation.
	Units() []string
	// Apps lists the application names with data on the relation.
	Apps() []string
	// AppData returns the application-wide databag for the named application.
	AppData(app string) Databag
	// UnitData returns the per-unit databag for the named unit.
	UnitData(unit string) Databag
}

// Store resolves relation instances by name.
//
// Lookups by name alone return the first (usually only) instance; lookups by
// ID address a specific instance when an application is related several times
// over the same interface.
type Store interface {
	// Relation returns the first instance of the named relation, or
	// ErrRelationNotFound.
	Relation(name string) (Relation, error)
	// RelationByID returns the instance of the named relation with the given
	// ID, or ErrRelationNotFound.
	RelationByID(name string, id int) (Relation, error)
	// Relations returns every instance of the named relation. A missing name
	// yields an empty slice, not an error.
	Relations(name string) []Relation
}
