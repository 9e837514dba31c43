// Package objstore is the thin, uniform contract the rest of the engine
// uses to talk to the content-addressed backend. Everything above this
// package only ever sees blobs, trees, commits and refs — never a
// filesystem path or a *git.Repository.
package objstore

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// OID is the content address of an object. It is opaque to callers above
// this package; today it is a git SHA-1/SHA-256 hash, encoded hex.
type OID = plumbing.Hash

// ZeroOID is the well-known "no object" sentinel, used as the "expected old"
// value when compare-and-swapping a ref into existence.
var ZeroOID = plumbing.ZeroHash

// EntryKind distinguishes a tree entry pointing at a blob from one pointing
// at another tree.
type EntryKind int

const (
	KindBlob EntryKind = iota
	KindTree
)

// Entry is one named child of a tree.
type Entry struct {
	Kind EntryKind
	OID  OID
}

// Tree is an in-memory view of a tree object: name -> entry. Order is not
// significant here; WriteTree canonicalizes it.
type Tree map[string]Entry

var (
	ErrNotFound      = errors.New("objstore: not found")
	ErrRefConflict   = errors.New("objstore: ref compare-and-swap conflict")
	ErrCorruptObject = errors.New("objstore: corrupt object")
)

// Store is the object-store adapter described in spec §4.A. It is backed by
// a single go-git repository and is safe for concurrent readers; writers are
// serialized by the caller (the txn package) via the advisory lock.
type Store struct {
	repo *git.Repository
}

// Open opens an existing bare-or-plain repository at path.
func Open(path string) (*Store, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("objstore: opening %s: %w", path, err)
	}
	return &Store{repo: r}, nil
}

// Init creates a brand-new repository at path, suitable for a fresh
// database, and returns a Store over it. The main ref does not exist until
// the first commit is written.
func Init(path string) (*Store, error) {
	r, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("objstore: initializing %s: %w", path, err)
	}
	return &Store{repo: r}, nil
}

// ReadBlob returns the raw bytes of the blob addressed by oid.
func (s *Store) ReadBlob(oid OID) ([]byte, error) {
	obj, err := s.repo.Storer.EncodedObject(plumbing.BlobObject, oid)
	if err != nil {
		return nil, fmt.Errorf("objstore: read blob %s: %w", oid, translate(err))
	}
	blob, err := object.DecodeBlob(obj)
	if err != nil {
		return nil, fmt.Errorf("objstore: decode blob %s: %w", oid, ErrCorruptObject)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("objstore: blob reader %s: %w", oid, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteBlob writes data as a new blob object, returning its content address.
// Writing the same bytes twice returns the same OID (content addressing).
func (s *Store) WriteBlob(data []byte) (OID, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return OID{}, fmt.Errorf("objstore: blob writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return OID{}, fmt.Errorf("objstore: writing blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return OID{}, fmt.Errorf("objstore: closing blob writer: %w", err)
	}
	oid, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return OID{}, fmt.Errorf("objstore: storing blob: %w", err)
	}
	return oid, nil
}

// ReadTree returns the name -> entry mapping of the tree addressed by oid.
func (s *Store) ReadTree(oid OID) (Tree, error) {
	t, err := object.GetTree(s.repo.Storer, oid)
	if err != nil {
		return nil, fmt.Errorf("objstore: read tree %s: %w", oid, translate(err))
	}
	out := make(Tree, len(t.Entries))
	for _, e := range t.Entries {
		kind := KindBlob
		if e.Mode == filemode.Dir {
			kind = KindTree
		}
		out[e.Name] = Entry{Kind: kind, OID: e.Hash}
	}
	return out, nil
}

// WriteTree canonicalizes tree (sorted by name, per git's own tree encoding
// rules) and writes it as a new tree object.
func (s *Store) WriteTree(tree Tree) (OID, error) {
	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)

	t := &object.Tree{}
	for _, name := range names {
		e := tree[name]
		mode := filemode.Regular
		if e.Kind == KindTree {
			mode = filemode.Dir
		}
		t.Entries = append(t.Entries, object.TreeEntry{
			Name: name,
			Mode: mode,
			Hash: e.OID,
		})
	}

	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	if err := t.Encode(obj); err != nil {
		return OID{}, fmt.Errorf("objstore: encoding tree: %w", err)
	}
	oid, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return OID{}, fmt.Errorf("objstore: storing tree: %w", err)
	}
	return oid, nil
}

// Signature identifies the author or committer of a commit.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Commit creates a new commit object with the given parent (or none, for the
// very first commit of a repository), root tree, message and author, and
// returns its OID. It does not touch any ref.
func (s *Store) Commit(parent *OID, root OID, message string, author Signature) (OID, error) {
	c := &object.Commit{
		Author:       object.Signature{Name: author.Name, Email: author.Email, When: author.When},
		Committer:    object.Signature{Name: author.Name, Email: author.Email, When: author.When},
		Message:      message,
		TreeHash:     root,
		ParentHashes: nil,
	}
	if parent != nil {
		c.ParentHashes = []plumbing.Hash{*parent}
	}
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	if err := c.Encode(obj); err != nil {
		return OID{}, fmt.Errorf("objstore: encoding commit: %w", err)
	}
	oid, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return OID{}, fmt.Errorf("objstore: storing commit: %w", err)
	}
	return oid, nil
}

// MergeCommit creates a commit with two parents (the merge-commit shape used
// by txn.Transaction.Commit when a fast-forward is not possible).
func (s *Store) MergeCommit(parents [2]OID, root OID, message string, author Signature) (OID, error) {
	c := &object.Commit{
		Author:       object.Signature{Name: author.Name, Email: author.Email, When: author.When},
		Committer:    object.Signature{Name: author.Name, Email: author.Email, When: author.When},
		Message:      message,
		TreeHash:     root,
		ParentHashes: []plumbing.Hash{parents[0], parents[1]},
	}
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	if err := c.Encode(obj); err != nil {
		return OID{}, fmt.Errorf("objstore: encoding merge commit: %w", err)
	}
	oid, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return OID{}, fmt.Errorf("objstore: storing merge commit: %w", err)
	}
	return oid, nil
}

// CommitTree returns the root tree OID of a commit.
func (s *Store) CommitTree(oid OID) (OID, error) {
	c, err := object.GetCommit(s.repo.Storer, oid)
	if err != nil {
		return OID{}, fmt.Errorf("objstore: read commit %s: %w", oid, translate(err))
	}
	return c.TreeHash, nil
}

// ReadRef resolves name to the commit OID it points at, or (ZeroOID, false,
// nil) if the ref does not exist.
func (s *Store) ReadRef(name string) (OID, bool, error) {
	ref, err := s.repo.Storer.Reference(plumbing.ReferenceName(name))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return ZeroOID, false, nil
		}
		return ZeroOID, false, fmt.Errorf("objstore: read ref %s: %w", name, err)
	}
	return ref.Hash(), true, nil
}

// UpdateRef atomically sets name to newOID, provided its current value
// equals expectedOld (ZeroOID meaning "must not yet exist"). This is the
// compare-and-swap primitive transactions serialize through.
func (s *Store) UpdateRef(name string, expectedOld OID, newOID OID) error {
	refName := plumbing.ReferenceName(name)
	newRef := plumbing.NewHashReference(refName, newOID)

	if expectedOld == ZeroOID {
		// Creation: go-git's CheckAndSetReference treats a nil "old" as
		// "don't check", which is exactly "must not yet exist" once we've
		// confirmed that ourselves first.
		if cur, ok, err := s.ReadRef(name); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: %s already points at %s", ErrRefConflict, name, cur)
		}
		if err := s.repo.Storer.CheckAndSetReference(newRef, nil); err != nil {
			return fmt.Errorf("objstore: creating ref %s: %w", name, err)
		}
		return nil
	}

	oldRef := plumbing.NewHashReference(refName, expectedOld)
	if err := s.repo.Storer.CheckAndSetReference(newRef, oldRef); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRefConflict, name, err)
	}
	return nil
}

// ListRefs returns every ref name with the given prefix (e.g.
// "refs/heads/txn/" to find transaction branches left behind by a crashed
// process).
func (s *Store) ListRefs(prefix string) ([]string, error) {
	iter, err := s.repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("objstore: listing refs: %w", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: listing refs: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteRef removes name, ignoring "already gone".
func (s *Store) DeleteRef(name string) error {
	err := s.repo.Storer.RemoveReference(plumbing.ReferenceName(name))
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("objstore: delete ref %s: %w", name, err)
	}
	return nil
}

// MergeBase returns the best common ancestor commit of a and b, or
// (ZeroOID, false, nil) if they share no history.
func (s *Store) MergeBase(a, b OID) (OID, bool, error) {
	ca, err := object.GetCommit(s.repo.Storer, a)
	if err != nil {
		return ZeroOID, false, fmt.Errorf("objstore: merge-base commit %s: %w", a, err)
	}
	cb, err := object.GetCommit(s.repo.Storer, b)
	if err != nil {
		return ZeroOID, false, fmt.Errorf("objstore: merge-base commit %s: %w", b, err)
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return ZeroOID, false, fmt.Errorf("objstore: computing merge base: %w", err)
	}
	if len(bases) == 0 {
		return ZeroOID, false, nil
	}
	return bases[0].Hash, true, nil
}

// ErrConflict is returned by ThreeWayMerge when the same path was changed
// differently on both sides.
type ErrConflict struct {
	Paths []string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("objstore: merge conflict on %d path(s): %v", len(e.Paths), e.Paths)
}

// ThreeWayMerge combines ours and theirs relative to base, structurally and
// path-wise, recursing into subtrees. A path is only a conflict when both
// sides touched it and ended up with different content; a path touched on
// only one side, or touched identically on both, merges cleanly. This is
// what lets two transactions that modify disjoint rows of the same table
// commit without contention (spec §9, second open question).
func (s *Store) ThreeWayMerge(base, ours, theirs OID) (OID, error) {
	baseTree, err := s.readTreeOrEmpty(base)
	if err != nil {
		return OID{}, err
	}
	oursTree, err := s.readTreeOrEmpty(ours)
	if err != nil {
		return OID{}, err
	}
	theirsTree, err := s.readTreeOrEmpty(theirs)
	if err != nil {
		return OID{}, err
	}

	merged, conflicts, err := s.mergeTrees(baseTree, oursTree, theirsTree)
	if err != nil {
		return OID{}, err
	}
	if len(conflicts) > 0 {
		return OID{}, &ErrConflict{Paths: conflicts}
	}
	return s.WriteTree(merged)
}

func (s *Store) readTreeOrEmpty(oid OID) (Tree, error) {
	if oid == ZeroOID {
		return Tree{}, nil
	}
	return s.ReadTree(oid)
}

func (s *Store) mergeTrees(base, ours, theirs Tree) (Tree, []string, error) {
	names := map[string]struct{}{}
	for n := range base {
		names[n] = struct{}{}
	}
	for n := range ours {
		names[n] = struct{}{}
	}
	for n := range theirs {
		names[n] = struct{}{}
	}

	merged := Tree{}
	var conflicts []string

	sameAsBase := func(name string, e Entry, ok bool) bool {
		b, bOK := base[name]
		return ok == bOK && (!ok || e == b)
	}

	for name := range names {
		b, bOK := base[name]
		o, oOK := ours[name]
		t, tOK := theirs[name]

		switch {
		case oOK == tOK && (!oOK || o == t):
			// ours and theirs agree: both absent, or both present and identical.
			if oOK {
				merged[name] = o
			}

		case sameAsBase(name, o, oOK) && !sameAsBase(name, t, tOK):
			// only theirs touched this path.
			if tOK {
				merged[name] = t
			}

		case sameAsBase(name, t, tOK) && !sameAsBase(name, o, oOK):
			// only ours touched this path.
			if oOK {
				merged[name] = o
			}

		case oOK && tOK && o.Kind == KindTree && t.Kind == KindTree:
			// both sides touched this path and both turned it into (or kept
			// it as) a subtree: recurse, merging structurally per entry
			// instead of treating the whole directory as one conflicting
			// unit. This is what lets two transactions touch disjoint rows
			// of the same table without conflicting.
			bSub := Tree{}
			if bOK && b.Kind == KindTree {
				sub, err := s.ReadTree(b.OID)
				if err != nil {
					return nil, nil, err
				}
				bSub = sub
			}
			oSub, err := s.ReadTree(o.OID)
			if err != nil {
				return nil, nil, err
			}
			tSub, err := s.ReadTree(t.OID)
			if err != nil {
				return nil, nil, err
			}
			subMerged, subConflicts, err := s.mergeTrees(bSub, oSub, tSub)
			if err != nil {
				return nil, nil, err
			}
			if len(subConflicts) > 0 {
				for _, c := range subConflicts {
					conflicts = append(conflicts, name+"/"+c)
				}
				continue
			}
			subOID, err := s.WriteTree(subMerged)
			if err != nil {
				return nil, nil, err
			}
			merged[name] = Entry{Kind: KindTree, OID: subOID}

		default:
			// both sides changed this path, to different non-mergeable
			// content: a genuine conflict.
			conflicts = append(conflicts, name)
		}
	}

	return merged, conflicts, nil
}

func translate(err error) error {
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return ErrNotFound
	}
	return err
}
