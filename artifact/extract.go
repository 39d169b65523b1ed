package artifact

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/otiai10/copy"
	"github.com/pkg/errors"

	"github.com/synapsenet/miner/internal/minerlog"
)

// Extract unpacks archivePath (detected by extension as gzip+tar or
// zstd+tar) into destDir, keeping only whitelisted entries and
// normalizing whichever internal layout the archive used into the target
// shape (tensor-server subtree or EZKL layout) via otiai10/copy (spec
// §4.3 "Extraction", added normalization step). Re-running on an
// already-extracted directory is a no-op: Extract is only ever called
// after the idempotent-extraction presence check in the pipeline caller.
func Extract(archivePath, destDir string) error {
	log := minerlog.Module("artifact.extract").With("archive", archivePath, "dest", destDir)

	stagingDir, err := os.MkdirTemp(filepath.Dir(destDir), ".artifact-staging-*")
	if err != nil {
		return errors.Wrap(err, "create staging dir")
	}
	defer os.RemoveAll(stagingDir)

	tr, closer, err := openArchive(archivePath)
	if err != nil {
		return err
	}
	defer closer()

	matched := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "read archive entry")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Base(hdr.Name)
		target, ok := whitelist[name]
		if !ok {
			continue
		}

		dst := filepath.Join(stagingDir, target)
		if err := writeEntry(dst, tr); err != nil {
			return errors.Wrapf(err, "write entry %s", name)
		}
		matched++
	}

	if matched == 0 {
		return errors.New("required artifact missing: archive contained zero whitelisted entries")
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return errors.Wrap(err, "create destination dir")
	}
	if err := copy.Copy(stagingDir, destDir); err != nil {
		return errors.Wrap(err, "normalize extracted layout")
	}

	log.Info("extraction complete", "matched_entries", matched)
	return nil
}

func writeEntry(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	// Reject any resolved path that escapes the staging root — a
	// belt-and-suspenders check alongside the filepath.Base() used to
	// build dst above, which already strips directory components from
	// the archive-supplied name.
	if strings.Contains(dst, "..") {
		return errors.New("path traversal rejected")
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func openArchive(path string) (*tar.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open archive")
	}

	switch {
	case strings.HasSuffix(path, ".tar.zst") || strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, errors.Wrap(err, "open zstd stream")
		}
		return tar.NewReader(zr), func() error {
			zr.Close()
			return f.Close()
		}, nil
	default:
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, errors.Wrap(err, "open gzip stream")
		}
		return tar.NewReader(gz), func() error {
			gz.Close()
			return f.Close()
		}, nil
	}
}
