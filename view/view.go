// Package view is the glue between the object-store adapter's generic
// blob/tree contract and the directory conventions spec §6 fixes: a
// reserved _schema/ directory plus one directory per user table, each a
// flat directory of per-row blobs. It has no notion of transactions or
// commits — a Snapshot is just "the root tree as of some commit", and
// Apply produces the root tree of the *next* commit without writing one.
// The txn package is what turns a sequence of Snapshot.Apply calls into
// commits on a branch.
package view

import (
	"fmt"

	"github.com/gitdb-project/gitdb/objstore"
)

// SchemaDir is the reserved directory holding one blob per table schema.
const SchemaDir = "_schema"

// Snapshot is a read/propose-write view of one root tree.
type Snapshot struct {
	store *objstore.Store
	root  objstore.OID
}

// New wraps root (which may be objstore.ZeroOID for an empty tree, e.g. a
// brand-new database with no commits yet).
func New(store *objstore.Store, root objstore.OID) *Snapshot {
	return &Snapshot{store: store, root: root}
}

// Root returns the tree this snapshot views.
func (s *Snapshot) Root() objstore.OID { return s.root }

func (s *Snapshot) rootTree() (objstore.Tree, error) {
	if s.root == objstore.ZeroOID {
		return objstore.Tree{}, nil
	}
	return s.store.ReadTree(s.root)
}

// ListDir returns the entries of a top-level directory (a table directory,
// or SchemaDir), or an empty map if the directory does not exist.
func (s *Snapshot) ListDir(dir string) (map[string]objstore.Entry, error) {
	root, err := s.rootTree()
	if err != nil {
		return nil, err
	}
	e, ok := root[dir]
	if !ok {
		return map[string]objstore.Entry{}, nil
	}
	if e.Kind != objstore.KindTree {
		return nil, fmt.Errorf("view: %s is not a directory", dir)
	}
	t, err := s.store.ReadTree(e.OID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]objstore.Entry, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out, nil
}

// ReadFile reads one blob out of a top-level directory.
func (s *Snapshot) ReadFile(dir, name string) ([]byte, bool, error) {
	entries, err := s.ListDir(dir)
	if err != nil {
		return nil, false, err
	}
	e, ok := entries[name]
	if !ok {
		return nil, false, nil
	}
	data, err := s.store.ReadBlob(e.OID)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// DirOp describes the change to apply to one top-level directory as part
// of a single Apply call.
type DirOp struct {
	Dir     string
	Put     map[string][]byte // name -> new content
	Delete  []string          // names to remove
	DropDir bool              // remove the whole directory entry
}

// Apply computes the root tree that results from applying ops to s, without
// writing a commit. Every write a single SQL statement makes — however many
// rows it touches — goes through exactly one Apply call, which is what
// makes "one statement, one commit" (spec §4.D, §8 property 4) mechanical:
// the caller commits once over the OID Apply returns.
func (s *Snapshot) Apply(ops []DirOp) (objstore.OID, error) {
	root, err := s.rootTree()
	if err != nil {
		return objstore.OID{}, err
	}

	for _, op := range ops {
		if op.DropDir {
			delete(root, op.Dir)
			continue
		}

		sub := objstore.Tree{}
		if e, ok := root[op.Dir]; ok {
			if e.Kind != objstore.KindTree {
				return objstore.OID{}, fmt.Errorf("view: %s is not a directory", op.Dir)
			}
			t, err := s.store.ReadTree(e.OID)
			if err != nil {
				return objstore.OID{}, err
			}
			sub = t
		}

		for name, content := range op.Put {
			oid, err := s.store.WriteBlob(content)
			if err != nil {
				return objstore.OID{}, err
			}
			sub[name] = objstore.Entry{Kind: objstore.KindBlob, OID: oid}
		}
		for _, name := range op.Delete {
			delete(sub, name)
		}

		if len(sub) == 0 {
			delete(root, op.Dir)
			continue
		}
		subOID, err := s.store.WriteTree(sub)
		if err != nil {
			return objstore.OID{}, err
		}
		root[op.Dir] = objstore.Entry{Kind: objstore.KindTree, OID: subOID}
	}

	return s.store.WriteTree(root)
}
