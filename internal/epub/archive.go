package epub

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Archive zips the EPUB tree at root into dest. The mimetype entry comes
// first and is stored uncompressed without a data descriptor; META-INF and
// OPS follow, deflated in lexical order. Anything else under root is not
// part of the book and is left out.
func Archive(root, dest string) error {
	mimetype, err := os.ReadFile(filepath.Join(root, mimetypeName))
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	if err := writeStored(zw, mimetypeName, mimetype); err != nil {
		zw.Close()
		f.Close()
		return err
	}

	for _, dir := range []string{"META-INF", "OPS"} {
		if err := addTree(zw, root, dir); err != nil {
			zw.Close()
			f.Close()
			return fmt.Errorf("archive: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func addTree(zw *zip.Writer, root, dir string) error {
	start := filepath.Join(root, dir)
	if _, err := os.Stat(start); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		return addDeflated(zw, filepath.ToSlash(rel), p)
	})
}

func writeStored(zw *zip.Writer, name string, data []byte) error {
	fh := &zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	}
	w, err := zw.CreateRaw(fh)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func addDeflated(zw *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
