package hub

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// Kind says how a downloaded file is validated.
type Kind string

const (
	KindVocab  Kind = "vocab"
	KindMerges Kind = "merges"
	KindOther  Kind = "other"
)

// File is one file of a repository. SHA256 pins the expected content when
// set.
type File struct {
	Filename string `json:"filename"`
	Kind     Kind   `json:"kind"`
	SHA256   string `json:"sha256"`
}

// DefaultFiles returns the vocab.json and merges.txt of a GPT-2 style repo.
func DefaultFiles() []File {
	return []File{
		{Filename: "vocab.json", Kind: KindVocab},
		{Filename: "merges.txt", Kind: KindMerges},
	}
}

// Lock records the revision and checksum of every downloaded file.
type Lock struct {
	Repo      string                `json:"repo"`
	Generated string                `json:"generated"`
	Files     map[string]LockRecord `json:"files"`
}

type LockRecord struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

// ReadLock reads the lock manifest at path. A missing or unreadable file
// gives an empty Lock.
func ReadLock(path string) Lock {
	b, err := os.ReadFile(path)
	if err != nil {
		return Lock{Files: map[string]LockRecord{}}
	}
	var out Lock
	if err := json.Unmarshal(b, &out); err != nil {
		return Lock{Files: map[string]LockRecord{}}
	}
	if out.Files == nil {
		out.Files = map[string]LockRecord{}
	}
	return out
}

func WriteLock(path string, lock Lock) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}
	return nil
}

// VerifyLock checks every file recorded in the lock manifest in dir against
// its recorded checksum.
func VerifyLock(dir string) error {
	lockPath := filepath.Join(dir, LockFile)
	if _, err := os.Stat(lockPath); err != nil {
		return fmt.Errorf("lock manifest: %w", err)
	}

	lock := ReadLock(lockPath)

	names := slices.Sorted(maps.Keys(lock.Files))
	for _, name := range names {
		rec := lock.Files[name]

		actual, err := FileSHA256(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return err
		}
		if actual != rec.SHA256 {
			return &ChecksumMismatchError{File: name, Expected: rec.SHA256, Actual: actual}
		}
	}

	return nil
}
