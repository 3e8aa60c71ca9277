package artifact

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"

	"chatintent/internal/errors"
)

// Archive zips every regular file of a bundle directory into zipPath.
// Entries are stored at the archive root in name order.
func Archive(dir, zipPath string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to read bundle directory %s", dir)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(zipPath))
	}
	out, err := os.Create(zipPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", zipPath)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, name := range names {
		if err := addFile(zw, filepath.Join(dir, name), name); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrapf(err, "failed to finish %s", zipPath)
	}
	return out.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return errors.Wrapf(err, "failed to build zip header for %s", name)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return errors.Wrapf(err, "failed to add %s", name)
	}
	if _, err := io.Copy(w, src); err != nil {
		return errors.Wrapf(err, "failed to write %s", name)
	}
	return nil
}
