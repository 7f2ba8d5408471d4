package recorder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Export zips every regular file directly inside sessionDir into destZip
// under its file name, DEFLATE-compressed. Subdirectories are skipped.
func Export(sessionDir, destZip string) error {
	out, err := os.Create(destZip)
	if err != nil {
		return fmt.Errorf("recorder: create export archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		return fmt.Errorf("recorder: read session dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addZipEntry(zw, sessionDir, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func addZipEntry(zw *zip.Writer, dir, name string) error {
	path := filepath.Join(dir, name)
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("recorder: open %q for export: %w", name, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("recorder: add %q to archive: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("recorder: write %q to archive: %w", name, err)
	}
	return nil
}
