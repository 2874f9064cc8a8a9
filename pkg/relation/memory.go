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

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-process embeddings.
// It is safe for concurrent use; each reconciliation step still sees
// last-writer-wins semantics at whole-databag granularity.
type MemoryStore struct {
	mu        sync.Mutex
	relations map[string][]*MemoryRelation
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{relations: map[string][]*MemoryRelation{}}
}

// AddRelation creates a relation instance with the given name and ID and
// returns it. Adding an existing ID returns the existing instance.
func (s *MemoryStore) AddRelation(name string, id int) *MemoryRelation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.relations[name] {
		if r.id == id {
			return r
		}
	}
	r := &MemoryRelation{
		id:       id,
		appData:  map[string]*memoryDatabag{},
		unitData: map[string]*memoryDatabag{},
	}
	s.relations[name] = append(s.relations[name], r)
	return r
}

// RemoveRelation deletes the relation instance with the given name and ID.
func (s *MemoryStore) RemoveRelation(name string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.relations[name][:0]
	for _, r := range s.relations[name] {
		if r.id != id {
			kept = append(kept, r)
		}
	}
	s.relations[name] = kept
}

// Relation implements Store.
func (s *MemoryStore) Relation(name string) (Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs := s.relations[name]; len(rs) > 0 {
		return rs[0], nil
	}
	return nil, ErrRelationNotFound
}

// RelationByID implements Store.
func (s *MemoryStore) RelationByID(name string, id int) (Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.relations[name] {
		if r.id == id {
			return r, nil
		}
	}
	return nil, ErrRelationNotFound
}

// Relations implements Store.
func (s *MemoryStore) Relations(name string) []Relation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Relation, 0, len(s.relations[name]))
	for _, r := range s.relations[name] {
		out = append(out, r)
	}
	return out
}

// MemoryRelation is one in-memory relation instance. AddUnit and RemoveUnit
// model units joining and departing.
type MemoryRelation struct {
	mu       sync.Mutex
	id       int
	appData  map[string]*memoryDatabag
	unitData map[string]*memoryDatabag
}

// AddUnit joins a unit to the relation, creating its databag.
func (r *MemoryRelation) AddUnit(unit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.unitData[unit]; !ok {
		r.unitData[unit] = newMemoryDatabag()
	}
}

// RemoveUnit departs a unit from the relation, dropping its databag.
func (r *MemoryRelation) RemoveUnit(unit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.unitData, unit)
}

func (r *MemoryRelation) ID() int { return r.id }

func (r *MemoryRelation) Apps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	apps := make([]string, 0, len(r.appData))
	for a := range r.appData {
		apps = append(apps, a)
	}
	sort.Strings(apps)
	return apps
}

func (r *MemoryRelation) Units() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	units := make([]string, 0, len(r.unitData))
	for u := range r.unitData {
		units = append(units, u)
	}
	sort.Strings(units)
	return units
}

func (r *MemoryRelation) AppData(app string) Databag {
	r.mu.Lock()
	defer r.mu.Unlock()
	bag, ok := r.appData[app]
	if !ok {
		bag = newMemoryDatabag()
		r.appData[app] = bag
	}
	return bag
}

func (r *MemoryRelation) UnitData(unit string) Databag {
	r.mu.Lock()
	defer r.mu.Unlock()
	bag, ok := r.unitData[unit]
	if !ok {
		bag = newMemoryDatabag()
		r.unitData[unit] = bag
	}
	return bag
}

type memoryDatabag struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryDatabag() *memoryDatabag {
	return &memoryDatabag{data: map[string]string{}}
}

func (b *memoryDatabag) Get(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok
}

func (b *memoryDatabag) Set(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
}

func (b *memoryDatabag) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
}

func (b *memoryDatabag) Snapshot() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.data))
	for k, v := range b.data {
		out[k] = v
	}
	return out
}
