// Package asset packages and stages function code artifacts.
//
// Directories are zipped deterministically: entries are sorted, timestamps
// and permissions are fixed, so the same tree always produces the same hash.
package asset

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/schedulegen/stackwire-go/resources/lambda"
)

// ErrNotFound is returned when an asset path does not exist.
var ErrNotFound = errors.New("asset not found")

// ErrInline is returned when staging inline code.
var ErrInline = errors.New("inline code has no asset")

// zipEpoch is the modification time stamped on every entry.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Staged is a packaged code artifact.
type Staged struct {
	// Source is the resolved path the artifact was built from.
	Source string
	// Hash is the hex sha256 of the zip bytes.
	Hash string
	// Key is the object key the artifact is uploaded under.
	Key string
	// Path is the staged file in the outdir, empty when nothing was written.
	Path string
	// Data is the zip archive.
	Data []byte
}

// CallerDir returns the directory of the source file that called it. Stack
// declarations use it as AssetRoot so relative asset paths are anchored at the
// declaration file instead of the working directory.
func CallerDir() string {
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		return ""
	}
	return filepath.Dir(file)
}

// Stage resolves code against root, packages it and, when outdir is not
// empty, writes asset.<hash>.zip into outdir.
func Stage(code *lambda.Code, root, outdir string) (*Staged, error) {
	if code == nil || !code.IsAsset() {
		return nil, ErrInline
	}
	source := code.Resolve(root)
	data, hash, err := Package(source)
	if err != nil {
		return nil, err
	}

	st := &Staged{
		Source: source,
		Hash:   hash,
		Key:    hash + ".zip",
		Data:   data,
	}
	if outdir == "" {
		return st, nil
	}

	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return nil, fmt.Errorf("creating outdir: %w", err)
	}
	st.Path = filepath.Join(outdir, "asset."+hash+".zip")
	if err := os.WriteFile(st.Path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing asset: %w", err)
	}
	return st, nil
}

// Package returns the zip bytes for path and their hash. A .zip file is used
// as is; a directory is archived.
func Package(path string) ([]byte, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, "", err
	}

	var data []byte
	switch {
	case info.IsDir():
		data, err = zipDir(path)
	case strings.EqualFold(filepath.Ext(path), ".zip"):
		data, err = os.ReadFile(path)
	default:
		return nil, "", fmt.Errorf("%s: asset must be a directory or a .zip archive", path)
	}
	if err != nil {
		return nil, "", err
	}

	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

func zipDir(dir string) ([]byte, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range files {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: zipEpoch}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(w, f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// InlineFile is the file name inline source is archived under for a runtime
// family, matching what the provider expects for ZipFile code.
func InlineFile(family lambda.Family) string {
	switch family {
	case lambda.FamilyNode:
		return "index.js"
	case lambda.FamilyPython:
		return "index.py"
	case lambda.FamilyProvided:
		return "bootstrap"
	}
	return "inline"
}

// PackageInline archives inline source as a single file and returns the zip
// bytes and their hash.
func PackageInline(source, name string) ([]byte, string, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: zipEpoch}
	hdr.SetMode(0o644)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.WriteString(w, source); err != nil {
		return nil, "", err
	}
	if err := zw.Close(); err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:]), nil
}

// Inspect lists the file entries of a zip archive.
func Inspect(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	var names []string
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, "/") {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
