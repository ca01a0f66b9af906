// Package hub downloads vocab and merges files from a Hugging Face model
// repository and pins their checksums in a local lock manifest.
package hub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/example/go-bpetok/internal/vocabfile"
)

// DefaultBaseURL is the Hugging Face file endpoint.
const DefaultBaseURL = "https://huggingface.co"

// LockFile is the name of the lock manifest written next to the files.
const LockFile = "download-manifest.lock.json"

// DownloadOptions configures Download.
type DownloadOptions struct {
	Repo     string
	Revision string
	OutDir   string
	// Token is sent as a bearer token when set.
	Token string
	// Files defaults to DefaultFiles.
	Files []File
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	Client  *http.Client
	Stdout  io.Writer
}

// ErrAccessDenied is returned when the hub rejects the credentials.
type ErrAccessDenied struct {
	Repo string
}

func (e *ErrAccessDenied) Error() string {
	return fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", e.Repo)
}

// ChecksumMismatchError reports a file whose content does not match the
// expected sha256.
type ChecksumMismatchError struct {
	File     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s got %s", e.File, e.Expected, e.Actual)
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// Download fetches every file of opts into OutDir. A file already on disk
// with the expected checksum is skipped. The expected checksum comes from
// the File itself, then the lock manifest, then the hub's LFS metadata;
// when none is known the downloaded file's checksum is recorded. Every
// file is parsed before it is moved into place.
func Download(ctx context.Context, opts DownloadOptions) error {
	if opts.Repo == "" {
		return errors.New("repo is required")
	}
	if opts.OutDir == "" {
		return errors.New("out dir is required")
	}
	if opts.Revision == "" {
		opts.Revision = "main"
	}
	if opts.Files == nil {
		opts.Files = DefaultFiles()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Minute}
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, LockFile)
	lock := ReadLock(lockPath)
	lock.Repo = opts.Repo
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	d := downloader{opts: opts}

	for _, f := range opts.Files {
		expected, err := d.expectedChecksum(ctx, f, lock)
		if err != nil {
			return err
		}

		localPath := filepath.Join(opts.OutDir, filepath.FromSlash(f.Filename))

		if expected != "" {
			ok, err := existingMatches(localPath, expected)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Filename)
				lock.Files[f.Filename] = LockRecord{Revision: opts.Revision, SHA256: expected}
				continue
			}
		}

		fmt.Fprintf(opts.Stdout, "download %s@%s -> %s\n", f.Filename, opts.Revision, localPath)

		actual, err := d.fetch(ctx, f, localPath, expected)
		if err != nil {
			return err
		}

		fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", f.Filename, actual)
		lock.Files[f.Filename] = LockRecord{Revision: opts.Revision, SHA256: actual}
	}

	if err := WriteLock(lockPath, lock); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)
	return nil
}

type downloader struct {
	opts DownloadOptions
}

func (d downloader) expectedChecksum(ctx context.Context, f File, lock Lock) (string, error) {
	if f.SHA256 != "" {
		return strings.ToLower(f.SHA256), nil
	}

	if lr, ok := lock.Files[f.Filename]; ok && lr.Revision == d.opts.Revision && isSHA256Hex(lr.SHA256) {
		return strings.ToLower(lr.SHA256), nil
	}

	return d.checksumFromMetadata(ctx, f)
}

// fetch downloads f to a temp file, checks its checksum and format, and
// renames it to outPath. It returns the sha256 of the content.
func (d downloader) fetch(ctx context.Context, f File, outPath, expected string) (string, error) {
	resp, err := d.do(ctx, http.MethodGet, f)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download failed for %s: %s", f.Filename, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("create local subdir: %w", err)
	}

	tmp := outPath + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(fh, h), resp.Body); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("download read failed: %w", err)
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if expected != "" && actual != expected {
		_ = os.Remove(tmp)
		return "", &ChecksumMismatchError{File: f.Filename, Expected: expected, Actual: actual}
	}

	if err := f.Kind.check(tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("downloaded %s is not a valid %s file: %w", f.Filename, f.Kind, err)
	}

	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move temp file into place: %w", err)
	}

	return actual, nil
}

// checksumFromMetadata returns the LFS sha256 the hub advertises for f, or
// "" when the file is not stored in LFS.
func (d downloader) checksumFromMetadata(ctx context.Context, f File) (string, error) {
	resp, err := d.do(ctx, http.MethodHead, f)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return "", fmt.Errorf("metadata request failed for %s: %s", f.Filename, resp.Status)
	}

	if v := normalizeETag(resp.Header.Get("X-Linked-Etag")); isSHA256Hex(v) {
		return strings.ToLower(v), nil
	}

	return "", nil
}

func (d downloader) do(ctx context.Context, method string, f File) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.url(f), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if d.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.opts.Token)
	}

	resp, err := d.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, f.Filename, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, &ErrAccessDenied{Repo: d.opts.Repo}
	}

	return resp, nil
}

func (d downloader) url(f File) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", strings.TrimRight(d.opts.BaseURL, "/"), d.opts.Repo, d.opts.Revision, f.Filename)
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat existing file: %w", err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}
	actual, err := FileSHA256(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "\"")
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, "\"")
	return v
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

// FileSHA256 returns the hex sha256 of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ---------------------------------------------------------------------------
// File kinds
// ---------------------------------------------------------------------------

func (k Kind) check(path string) error {
	switch k {
	case KindVocab:
		_, err := vocabfile.ReadVocabFile(path)
		return err
	case KindMerges:
		_, err := vocabfile.ReadMergesFile(path)
		return err
	default:
		return nil
	}
}
