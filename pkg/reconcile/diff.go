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

package reconcile

import "k8s.io/apimachinery/pkg/util/sets"

// Plan is the ordered outcome of one Diff: what to create, what to refresh
// in place, and what to remove. Each slice is sorted for deterministic
// application.
type Plan struct {
	Create []string
	Update []string
	Delete []string
}

// Empty reports whether the plan contains no actions.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Diff computes the reconciliation plan between a desired and an actual set.
// keep, when non-nil, is consulted for every removal candidate; returning
// true protects the entry from deletion (used to spare hierarchical children
// of surviving entries). Entries present in both sets land in Update so
// their attributes can be refreshed.
func Diff(desired, actual sets.Set[string], keep func(string) bool) Plan {
	deletions := actual.Difference(desired)
	plan := Plan{
		Create: sets.List(desired.Difference(actual)),
		Update: sets.List(desired.Intersection(actual)),
	}
	for _, entry := range sets.List(deletions) {
		if keep != nil && keep(entry) {
			continue
		}
		plan.Delete = append(plan.Delete, entry)
	}
	return plan
}
