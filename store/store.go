// Package store implements ref-namespaced persistence: workflow and task
// state is stored as git blobs reachable from commits under refs/zen/, not
// as loose files. This mirrors the teacher's go-git usage for ref
// inspection (session/git/util.go, worktree.go) but repurposes it for
// application state rather than worktree bookkeeping, and supplements the
// teacher's flat state.json (mcp/state.go) with a one-shot migration path.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/zen-cli/zen/zenerr"
)

const refNamespace = "refs/zen/"

// migratedRef is the marker ref whose mere presence indicates state.json
// has already been migrated into the ref namespace.
const migratedRef = refNamespace + "migrated"

// Store persists arbitrary JSON-serializable values as git blobs, each
// wrapped in a commit and pointed to by a ref under refs/zen/.
type Store struct {
	repo *git.Repository
}

// Open opens the git repository at repoPath for ref-namespaced storage.
func Open(repoPath string) (*Store, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, zenerr.New(zenerr.Repository, "store.Open", err)
	}
	return &Store{repo: repo}, nil
}

// OpenOrInit opens the bare orchestration-metadata repository at repoPath,
// initializing it (git init --bare equivalent) if it does not exist yet.
// Used by cmd/zen to stand up ~/.zen/state on first run: this repository
// holds workflow/task Records under refs/zen/, separate from the target
// project repository a task's worktrees are checked out from.
func OpenOrInit(repoPath string) (*Store, error) {
	if _, err := os.Stat(filepath.Join(repoPath, "HEAD")); err == nil {
		return Open(repoPath)
	}
	if err := os.MkdirAll(repoPath, 0755); err != nil {
		return nil, zenerr.New(zenerr.Io, "store.OpenOrInit", err)
	}
	repo, err := git.PlainInit(repoPath, true)
	if err != nil {
		return nil, zenerr.New(zenerr.Repository, "store.OpenOrInit", err)
	}
	return &Store{repo: repo}, nil
}

func fullRef(name string) plumbing.ReferenceName {
	return plumbing.ReferenceName(refNamespace + strings.TrimPrefix(name, refNamespace))
}

// CreateRef serializes value as JSON, commits it as a blob, and points a
// fresh ref at the commit. Fails if name already exists.
func (s *Store) CreateRef(name string, value any) error {
	ref := fullRef(name)
	if _, err := s.repo.Reference(ref, false); err == nil {
		return zenerr.New(zenerr.RefExists, "store.CreateRef", fmt.Errorf("ref %s already exists", name))
	}

	commitHash, err := s.commitValue(value)
	if err != nil {
		return zenerr.New(zenerr.Io, "store.CreateRef", err)
	}

	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(ref, commitHash)); err != nil {
		return zenerr.New(zenerr.Repository, "store.CreateRef", err)
	}
	return nil
}

// ReadRef reads and unmarshals the JSON value at name into dest. Returns
// (false, nil) if the ref does not exist.
func (s *Store) ReadRef(name string, dest any) (bool, error) {
	ref, err := s.repo.Reference(fullRef(name), false)
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return false, nil
		}
		return false, zenerr.New(zenerr.Repository, "store.ReadRef", err)
	}

	data, err := s.readCommitBlob(ref.Hash())
	if err != nil {
		return false, zenerr.New(zenerr.Io, "store.ReadRef", err)
	}
	if dest != nil {
		if err := json.Unmarshal(data, dest); err != nil {
			return false, zenerr.New(zenerr.Io, "store.ReadRef", err)
		}
	}
	return true, nil
}

// UpdateRef replaces the value at an existing ref. Fails if name is absent.
func (s *Store) UpdateRef(name string, value any) error {
	ref := fullRef(name)
	if _, err := s.repo.Reference(ref, false); err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return zenerr.New(zenerr.RefNotFound, "store.UpdateRef", fmt.Errorf("ref %s not found", name))
		}
		return zenerr.New(zenerr.Repository, "store.UpdateRef", err)
	}

	commitHash, err := s.commitValue(value)
	if err != nil {
		return zenerr.New(zenerr.Io, "store.UpdateRef", err)
	}

	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(ref, commitHash)); err != nil {
		return zenerr.New(zenerr.Repository, "store.UpdateRef", err)
	}
	return nil
}

// DeleteRef removes a ref. Idempotent: deleting an absent ref is not an error.
func (s *Store) DeleteRef(name string) error {
	ref := fullRef(name)
	if _, err := s.repo.Reference(ref, false); err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil
		}
		return zenerr.New(zenerr.Repository, "store.DeleteRef", err)
	}
	if err := s.repo.Storer.RemoveReference(ref); err != nil {
		return zenerr.New(zenerr.Repository, "store.DeleteRef", err)
	}
	return nil
}

// ListRefs returns the short names (refNamespace stripped, prefix kept, e.g.
// "workflows/<id>") of every ref under refs/zen/<prefix>.
func (s *Store) ListRefs(prefix string) ([]string, error) {
	want := refNamespace + prefix
	iter, err := s.repo.References()
	if err != nil {
		return nil, zenerr.New(zenerr.Repository, "store.ListRefs", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		full := ref.Name().String()
		if strings.HasPrefix(full, want) {
			names = append(names, strings.TrimPrefix(full, refNamespace))
		}
		return nil
	})
	if err != nil {
		return nil, zenerr.New(zenerr.Repository, "store.ListRefs", err)
	}
	return names, nil
}

func (s *Store) commitValue(value any) (plumbing.Hash, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	blobHash, err := s.writeBlob(data)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	tree := &object.Tree{
		Entries: []object.TreeEntry{{Name: "state.json", Mode: filemode.Regular, Hash: blobHash}},
	}
	treeHash, err := s.writeTree(tree)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	commit := &object.Commit{
		Author:       object.Signature{Name: "zen", When: time.Now()},
		Committer:    object.Signature{Name: "zen", When: time.Now()},
		Message:      "update state",
		TreeHash:     treeHash,
		ParentHashes: nil,
	}
	return s.writeCommit(commit)
}

func (s *Store) readCommitBlob(commitHash plumbing.Hash) ([]byte, error) {
	commitObj, err := s.repo.CommitObject(commitHash)
	if err != nil {
		return nil, err
	}
	tree, err := commitObj.Tree()
	if err != nil {
		return nil, err
	}
	entry, err := tree.File("state.json")
	if err != nil {
		return nil, err
	}
	reader, err := entry.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// MigrateLegacyState performs the one-shot migration of a flat state.json
// file at legacyPath into the ref namespace: if legacyPath exists and the
// migrated marker does not, every top-level key of the legacy file becomes
// a ref under the given subNamespace, then the marker is created at HEAD.
// The marker's presence alone indicates "migrated"; re-running after a
// successful migration is a no-op.
func (s *Store) MigrateLegacyState(legacyPath, subNamespace string) error {
	if _, err := s.repo.Reference(fullRef("migrated"), false); err == nil {
		return nil
	}

	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return zenerr.New(zenerr.Io, "store.MigrateLegacyState", err)
	}

	var legacy map[string]json.RawMessage
	if err := json.Unmarshal(data, &legacy); err != nil {
		return zenerr.New(zenerr.Io, "store.MigrateLegacyState", err)
	}

	for key, raw := range legacy {
		name := filepath.Join(subNamespace, key)
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return zenerr.New(zenerr.Io, "store.MigrateLegacyState", err)
		}
		if err := s.CreateRef(name, value); err != nil && zenerr.KindOf(err) != zenerr.RefExists {
			return err
		}
	}

	head, err := s.repo.Head()
	if err != nil {
		return zenerr.New(zenerr.Repository, "store.MigrateLegacyState", err)
	}
	marker := plumbing.NewHashReference(fullRef("migrated"), head.Hash())
	if err := s.repo.Storer.SetReference(marker); err != nil {
		return zenerr.New(zenerr.Repository, "store.MigrateLegacyState", err)
	}
	return nil
}

func (s *Store) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

func (s *Store) writeTree(tree *object.Tree) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

func (s *Store) writeCommit(commit *object.Commit) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}
