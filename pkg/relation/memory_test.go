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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryStoreLookup(t *testing.T) {
	store := NewMemoryStore()
	store.AddRelation("certificates", 0)
	store.AddRelation("certificates", 1)

	rel, err := store.Relation("certificates")
	if err != nil {
		t.Fatalf("Relation() error = %v", err)
	}
	if rel.ID() != 0 {
		t.Errorf("Relation() ID = %d, want 0", rel.ID())
	}

	rel, err = store.RelationByID("certificates", 1)
	if err != nil {
		t.Fatalf("RelationByID() error = %v", err)
	}
	if rel.ID() != 1 {
		t.Errorf("RelationByID() ID = %d, want 1", rel.ID())
	}

	if got := len(store.Relations("certificates")); got != 2 {
		t.Errorf("Relations() returned %d instances, want 2", got)
	}
}

func TestMemoryStoreMissingRelation(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Relation("certificates"); !errors.Is(err, ErrRelationNotFound) {
		t.Errorf("Relation() error = %v, want ErrRelationNotFound", err)
	}
	if _, err := store.RelationByID("certificates", 7); !errors.Is(err, ErrRelationNotFound) {
		t.Errorf("RelationByID() error = %v, want ErrRelationNotFound", err)
	}
	if got := store.Relations("certificates"); len(got) != 0 {
		t.Errorf("Relations() = %v, want empty", got)
	}
}

func TestMemoryStoreRemoveRelation(t *testing.T) {
	store := NewMemoryStore()
	store.AddRelation("certificates", 0)
	store.RemoveRelation("certificates", 0)

	if _, err := store.Relation("certificates"); !errors.Is(err, ErrRelationNotFound) {
		t.Errorf("Relation() after removal error = %v, want ErrRelationNotFound", err)
	}
}

func TestMemoryRelationUnits(t *testing.T) {
	store := NewMemoryStore()
	rel := store.AddRelation("certificates", 0)
	rel.AddUnit("requirer/1")
	rel.AddUnit("requirer/0")
	rel.AddUnit("requirer/1") // duplicate join

	if diff := cmp.Diff([]string{"requirer/0", "requirer/1"}, rel.Units()); diff != "" {
		t.Errorf("Units() mismatch (-want +got):\n%s", diff)
	}

	rel.RemoveUnit("requirer/0")
	if diff := cmp.Diff([]string{"requirer/1"}, rel.Units()); diff != "" {
		t.Errorf("Units() after departure mismatch (-want +got):\n%s", diff)
	}
}

func TestDatabagRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	rel := store.AddRelation("certificates", 0)

	bag := rel.UnitData("requirer/0")
	bag.Set("k", "v1")
	bag.Set("k", "v2")

	if v, ok := bag.Get("k"); !ok || v != "v2" {
		t.Errorf("Get() = %q, %v, want %q, true", v, ok, "v2")
	}

	snap := bag.Snapshot()
	snap["k"] = "mutated"
	if v, _ := bag.Get("k"); v != "v2" {
		t.Errorf("Snapshot mutation leaked into databag: %q", v)
	}

	bag.Delete("k")
	bag.Delete("k") // absent delete is a no-op
	if _, ok := bag.Get("k"); ok {
		t.Error("Get() after Delete() still present")
	}
}

func TestDatabagsAreDistinctPerParticipant(t *testing.T) {
	store := NewMemoryStore()
	rel := store.AddRelation("certificates", 0)

	rel.AppData("provider").Set("certificates", "[]")
	rel.UnitData("requirer/0").Set("certificate_signing_requests", "[]")

	if _, ok := rel.AppData("requirer").Get("certificates"); ok {
		t.Error("provider app data visible under requirer app databag")
	}
	if _, ok := rel.UnitData("requirer/1").Get("certificate_signing_requests"); ok {
		t.Error("unit data leaked across units")
	}
}
