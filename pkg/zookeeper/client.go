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

package zookeeper

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Ensemble is the znode surface the ACL reconciler needs. Implementations
// are expected to be authenticated as a superuser.
type Ensemble interface {
	// Znodes returns every znode path under root, root excluded, system
	// nodes excluded.
	Znodes(root string) (sets.Set[string], error)
	// CreateZnode creates a persistent znode with the given ACLs.
	CreateZnode(path string, acls []zk.ACL) error
	// SetACLs replaces the ACLs on an existing znode.
	SetACLs(path string, acls []zk.ACL) error
	// DeleteZnode removes a znode and everything below it.
	DeleteZnode(path string) error
}

// Conn adapts a go-zookeeper connection to the Ensemble interface.
type Conn struct {
	conn *zk.Conn
}

// Connect dials the ensemble and authenticates with digest credentials.
func Connect(servers []string, username, password string, sessionTimeout time.Duration) (*Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ensemble: %w", err)
	}
	if err := conn.AddAuth("digest", []byte(username+":"+password)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() {
	c.conn.Close()
}

// Znodes implements Ensemble by walking the tree below root.
func (c *Conn) Znodes(root string) (sets.Set[string], error) {
	paths := sets.New[string]()
	if err := c.walk(root, root, paths); err != nil {
		return nil, err
	}
	return paths, nil
}

func (c *Conn) walk(root, path string, paths sets.Set[string]) error {
	children, _, err := c.conn.Children(path)
	if err != nil {
		return fmt.Errorf("failed to list children of %s: %w", path, err)
	}
	for _, child := range children {
		childPath := joinPath(path, child)
		// /zookeeper holds quota and config system nodes.
		if childPath == "/zookeeper" {
			continue
		}
		paths.Insert(childPath)
		if err := c.walk(root, childPath, paths); err != nil {
			return err
		}
	}
	return nil
}

// CreateZnode implements Ensemble.
func (c *Conn) CreateZnode(path string, acls []zk.ACL) error {
	if _, err := c.conn.Create(path, nil, 0, acls); err != nil {
		return fmt.Errorf("failed to create znode %s: %w", path, err)
	}
	return nil
}

// SetACLs implements Ensemble.
func (c *Conn) SetACLs(path string, acls []zk.ACL) error {
	if _, err := c.conn.SetACL(path, acls, -1); err != nil {
		return fmt.Errorf("failed to set ACLs on %s: %w", path, err)
	}
	return nil
}

// DeleteZnode implements Ensemble, removing children depth-first.
func (c *Conn) DeleteZnode(path string) error {
	children, _, err := c.conn.Children(path)
	if err != nil {
		return fmt.Errorf("failed to list children of %s: %w", path, err)
	}
	for _, child := range children {
		if err := c.DeleteZnode(joinPath(path, child)); err != nil {
			return err
		}
	}
	if err := c.conn.Delete(path, -1); err != nil {
		return fmt.Errorf("failed to delete znode %s: %w", path, err)
	}
	return nil
}

func joinPath(parent, child string) string {
	if parent == "/" {
		return "/" + child
	}
	return parent + "/" + child
}
