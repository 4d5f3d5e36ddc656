package dataset

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnsafePath is returned for archive entries that would land outside the
// extraction directory
var ErrUnsafePath = errors.New("archive entry escapes destination")

// ExtractTarGz unpacks a gzip-compressed tar stream into dest and returns the
// number of regular files written. Only directories and regular files are
// extracted; links and devices are skipped.
func ExtractTarGz(r io.Reader, dest string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, errors.Wrap(err, "open gzip stream")
	}
	defer gz.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, errors.Wrap(err, "resolve destination")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return 0, errors.Wrap(err, "create destination")
	}

	files := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return files, errors.Wrap(err, "read tar entry")
		}

		target, err := entryPath(root, hdr.Name)
		if err != nil {
			return files, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, errors.Wrapf(err, "create %s", hdr.Name)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return files, errors.Wrapf(err, "extract %s", hdr.Name)
			}
			files++
		}
	}
}

func entryPath(root, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", errors.Wrap(ErrUnsafePath, name)
	}
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", errors.Wrap(ErrUnsafePath, name)
	}
	return target, nil
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
