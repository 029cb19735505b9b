// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// Extension is the file name extension of checkpoint files.
	Extension = ".borsh"

	// DefaultRetain is the number of checkpoint files kept on load.
	DefaultRetain = 3

	// maxCollisions is the number of suffixed names tried when a
	// checkpoint with the same timestamp already exists.
	maxCollisions = 99
)

// Store is a directory of checkpoint files.  Files are named after the UNIX
// time they were written at, so that lexical order is creation order.  A
// second checkpoint within the same second gets a _NN suffix, which still
// sorts after the plain name.
type Store struct {
	root   string
	retain int

	myNow func() time.Time // Override time.Now()
}

// NewStore returns a store rooted at root, creating the directory if it does
// not exist.
func NewStore(root string) (*Store, error) {
	err := os.MkdirAll(root, 0700)
	if err != nil {
		return nil, fmt.Errorf("create history dir %v: %w", root, err)
	}
	return &Store{
		root:   root,
		retain: DefaultRetain,
		myNow:  time.Now,
	}, nil
}

// OpenStore returns a store rooted at the existing directory root.  Unlike
// NewStore it never creates anything.
func OpenStore(root string) (*Store, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open history dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("open history dir %v: not a directory",
			root)
	}
	return &Store{
		root:   root,
		retain: DefaultRetain,
		myNow:  time.Now,
	}, nil
}

// Root returns the checkpoint directory.
func (s *Store) Root() string {
	return s.root
}

// List returns the checkpoint file names sorted oldest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read history dir %v: %w", s.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Newest returns the path of the newest checkpoint without applying the
// retention policy, or an empty string when there is none.
func (s *Store) Newest() (string, error) {
	names, err := s.List()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return filepath.Join(s.root, names[len(names)-1]), nil
}

// Load decodes the checkpoint at path.
func Load(path string) (*History, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h History
	if err := h.UnmarshalBinary(payload); err != nil {
		return nil, fmt.Errorf("decode %v: %w", path, err)
	}
	if len(h.Boards) == 0 {
		return nil, fmt.Errorf("decode %v: %w", path, ErrEmpty)
	}
	return &h, nil
}

// LoadLatest enforces the retention policy by deleting all but the newest
// checkpoints and then decodes the newest one.  It returns nil when the
// directory holds no checkpoint.  A checkpoint that decodes but fails Check
// is an error.
func (s *Store) LoadLatest() (*History, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}

	if len(names) > s.retain {
		for _, name := range names[:len(names)-s.retain] {
			path := filepath.Join(s.root, name)
			log.Infof("Deleting old history %v", path)
			if err := os.Remove(path); err != nil {
				return nil, err
			}
		}
		names = names[len(names)-s.retain:]
	}

	if len(names) == 0 {
		return nil, nil
	}

	path := filepath.Join(s.root, names[len(names)-1])
	log.Infof("Recovering history from %v", path)
	h, err := Load(path)
	if err != nil {
		return nil, err
	}
	if errs := Check(h); len(errs) != 0 {
		return nil, fmt.Errorf("%v: %w: %w", path, ErrInconsistent,
			errors.Join(errs...))
	}
	log.Infof("History contains %v boards, last scanned height %v",
		len(h.Boards), h.LastScannedHeight)

	return h, nil
}

// Save writes h to a new checkpoint file and returns its path.  The data is
// synced to a temporary file first and then linked under its final name so
// that a crash never leaves a truncated checkpoint behind and an existing
// checkpoint is never overwritten.
func (s *Store) Save(h *History) (string, error) {
	payload, err := h.MarshalBinary()
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(s.root, "history-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temporary checkpoint in %v: %w",
			s.root, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	_, err = f.Write(payload)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write %v: %w", tmp, err)
	}

	base := strconv.FormatInt(s.myNow().Unix(), 10)
	for i := 0; i <= maxCollisions; i++ {
		name := base + Extension
		if i > 0 {
			name = fmt.Sprintf("%v_%02d%v", base, i, Extension)
		}
		path := filepath.Join(s.root, name)
		err := os.Link(tmp, path)
		if err == nil {
			log.Infof("Saved history to %v: %v boards, last scanned "+
				"height %v", path, len(h.Boards),
				h.LastScannedHeight)
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("save %v: %w", path, err)
		}
	}

	return "", fmt.Errorf("save history in %v: too many checkpoints for "+
		"timestamp %v", s.root, base)
}
