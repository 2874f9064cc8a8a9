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
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-zookeeper/zk"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/numtide/tls-relation-operator/pkg/reconcile"
	"github.com/numtide/tls-relation-operator/pkg/relation"
)

const (
	// DefaultPermissions grants everything when a client does not narrow its
	// ACL.
	DefaultPermissions = "cdrwa"
	// DefaultClientPort is the plaintext ZooKeeper client port.
	DefaultClientPort = 2181

	passwordLength   = 32
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// RelationConfig is the derived auth configuration for one related client
// application.
type RelationConfig struct {
	Username string
	Password string
	Chroot   string
	ACL      string
}

// Options configures optional Provider behavior.
type Options struct {
	// ClientPort is used when building connection URIs. Defaults to
	// DefaultClientPort.
	ClientPort int
	// Logger receives reconciliation logging. Defaults to logr.Discard().
	Logger logr.Logger
}

// Provider reconciles chroot znodes and ACLs for every client application
// related over the client relation. It runs on the ZooKeeper application's
// leader; credentials are stored in the peer relation's application databag.
type Provider struct {
	store        relation.Store
	relationName string
	peerName     string
	app          string
	clientPort   int
	log          logr.Logger
}

// NewProvider returns a Provider. relationName is the client-facing relation
// (for example "database"), peerName the peer relation holding credentials
// (for example "cluster"), and app the ZooKeeper application's own name.
func NewProvider(store relation.Store, relationName, peerName, app string, opts Options) *Provider {
	port := opts.ClientPort
	if port <= 0 {
		port = DefaultClientPort
	}
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Provider{
		store:        store,
		relationName: relationName,
		peerName:     peerName,
		app:          app,
		clientPort:   port,
		log:          log.WithName("zookeeper-provider").WithValues("relation", relationName),
	}
}

// relationConfig derives the auth config for one client relation. It returns
// nil when the client has not declared a chroot yet, or has no application
// data at all.
func (p *Provider) relationConfig(rel relation.Relation) *RelationConfig {
	username := fmt.Sprintf("relation-%d", rel.ID())

	password := ""
	if peer, err := p.store.Relation(p.peerName); err == nil {
		password, _ = peer.AppData(p.app).Get(username)
	}

	remoteApp := ""
	for _, app := range rel.Apps() {
		if app != p.app {
			remoteApp = app
			break
		}
	}
	if remoteApp == "" {
		return nil
	}
	bag := rel.AppData(remoteApp)

	acl, ok := bag.Get("chroot-acl")
	if !ok || acl == "" {
		acl = DefaultPermissions
	}

	chroot, ok := bag.Get("chroot")
	if !ok || chroot == "" {
		// Older clients declare the chroot under the generic database key.
		chroot, _ = bag.Get("database")
	}
	if chroot == "" {
		p.log.Info("client has not declared a chroot", "relationID", rel.ID())
		return nil
	}
	if !strings.HasPrefix(chroot, "/") {
		chroot = "/" + chroot
	}

	return &RelationConfig{Username: username, Password: password, Chroot: chroot, ACL: acl}
}

// RelationsConfig derives the auth configs for all current client
// relations, keyed by relation ID. excludeID skips one relation (the one
// being broken); pass a negative ID to exclude none.
func (p *Provider) RelationsConfig(excludeID int) map[int]RelationConfig {
	configs := map[int]RelationConfig{}
	for _, rel := range p.store.Relations(p.relationName) {
		if rel.ID() == excludeID {
			continue
		}
		if config := p.relationConfig(rel); config != nil {
			configs[rel.ID()] = *config
		}
	}
	return configs
}

// BuildACLs groups the derived ACL entries by chroot. Two clients sharing a
// chroot both appear in its ACL list.
func (p *Provider) BuildACLs(excludeID int) map[string][]zk.ACL {
	acls := map[string][]zk.ACL{}
	configs := p.RelationsConfig(excludeID)
	ids := make([]int, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		config := configs[id]
		acls[config.Chroot] = append(acls[config.Chroot], MakeACL(config.Username, config.ACL))
	}
	return acls
}

// MakeACL builds a SASL ACL entry for username from a permission string
// using per-letter flags (c=create, d=delete, r=read, w=write, a=admin).
func MakeACL(username, perms string) zk.ACL {
	var mask int32
	for _, perm := range perms {
		switch perm {
		case 'r':
			mask |= zk.PermRead
		case 'w':
			mask |= zk.PermWrite
		case 'c':
			mask |= zk.PermCreate
		case 'd':
			mask |= zk.PermDelete
		case 'a':
			mask |= zk.PermAdmin
		}
	}
	return zk.ACL{Perms: mask, Scheme: "sasl", ID: username}
}

// UpdateACLs reconciles the ensemble against the full set of client
// relations: missing chroots are created, surviving ones get their ACLs
// refreshed, departed ones are deleted unless they are children of a
// surviving chroot.
func (p *Provider) UpdateACLs(ensemble Ensemble) error {
	return p.updateACLs(ensemble, -1)
}

func (p *Provider) updateACLs(ensemble Ensemble, excludeID int) error {
	actual, err := ensemble.Znodes("/")
	if err != nil {
		return fmt.Errorf("failed to list znodes: %w", err)
	}

	acls := p.BuildACLs(excludeID)
	desired := sets.New[string]()
	for chroot := range acls {
		desired.Insert(chroot)
	}

	plan := reconcile.Diff(desired, actual, func(path string) bool {
		return isChildOf(path, desired)
	})

	for _, chroot := range plan.Create {
		p.log.Info("creating chroot", "chroot", chroot)
		if err := ensemble.CreateZnode(chroot, acls[chroot]); err != nil {
			return err
		}
	}
	for _, chroot := range plan.Update {
		p.log.Info("updating chroot ACLs", "chroot", chroot)
		if err := ensemble.SetACLs(chroot, acls[chroot]); err != nil {
			return err
		}
	}
	for _, chroot := range plan.Delete {
		p.log.Info("dropping chroot", "chroot", chroot)
		if err := ensemble.DeleteZnode(chroot); err != nil {
			return err
		}
	}
	return nil
}

// isChildOf reports whether path lives below any of the given chroots.
func isChildOf(path string, chroots sets.Set[string]) bool {
	for chroot := range chroots {
		if strings.HasPrefix(path, strings.TrimRight(chroot, "/")+"/") {
			return true
		}
	}
	return false
}

// ApplyRelationData publishes connection details to every configured client
// relation: username, a password (generated on first use and stored in the
// peer databag), chroot, endpoints, and chroot-scoped URIs.
func (p *Provider) ApplyRelationData(hosts []string) error {
	peer, err := p.store.Relation(p.peerName)
	if err != nil {
		return fmt.Errorf("peer relation %q: %w", p.peerName, err)
	}

	for id, config := range p.RelationsConfig(-1) {
		rel, err := p.store.RelationByID(p.relationName, id)
		if err != nil {
			return fmt.Errorf("relation %q id %d: %w", p.relationName, id, err)
		}

		password := config.Password
		if password == "" {
			password, err = GeneratePassword()
			if err != nil {
				return err
			}
		}
		peer.AppData(p.app).Set(config.Username, password)

		bag := rel.AppData(p.app)
		bag.Set("username", config.Username)
		bag.Set("password", password)
		bag.Set("chroot", config.Chroot)
		bag.Set("endpoints", strings.Join(hosts, ","))
		bag.Set("uris", strings.Join(ConnectionURIs(hosts, config.Chroot, p.clientPort), ","))
	}
	return nil
}

// HandleRelationBroken drops the departing relation's credentials from the
// peer databag and reconciles the ensemble with that relation excluded.
func (p *Provider) HandleRelationBroken(ensemble Ensemble, relationID int) error {
	username := fmt.Sprintf("relation-%d", relationID)
	if peer, err := p.store.Relation(p.peerName); err == nil {
		if _, ok := peer.AppData(p.app).Get(username); ok {
			p.log.Info("deleting client credentials", "username", username)
			peer.AppData(p.app).Delete(username)
		}
	}
	return p.updateACLs(ensemble, relationID)
}

// ConnectionURIs builds chroot-scoped connection URIs for the given hosts.
func ConnectionURIs(hosts []string, chroot string, clientPort int) []string {
	uris := make([]string, 0, len(hosts))
	for _, host := range hosts {
		uris = append(uris, fmt.Sprintf("%s:%d%s", host, clientPort, chroot))
	}
	return uris
}

// GeneratePassword returns a random alphanumeric password.
func GeneratePassword() (string, error) {
	out := make([]byte, passwordLength)
	limit := big.NewInt(int64(len(passwordAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}
