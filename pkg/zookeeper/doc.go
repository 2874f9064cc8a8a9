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

// Package zookeeper reconciles ZooKeeper chroot znodes and their ACLs from
// relation data.
//
// Every related client application declares a chroot and a permission string
// in its application databag; the reconciler derives the desired set of
// chroots, diffs it against the znodes present on the ensemble, and creates,
// re-ACLs, or deletes znodes accordingly. Children of a surviving chroot are
// never deleted. The ensemble is reached through the Ensemble interface so
// the reconciler can be tested without a live cluster; Conn adapts a
// go-zookeeper connection to it.
package zookeeper
