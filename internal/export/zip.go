package export

import (
	"archive/zip"
	"fmt"
	"io"
)

// ZipEntry is one file in a ZIP bundle.
type ZipEntry struct {
	Name string
	Data []byte
}

// Zip writes the entries, deflated, in the order given.
func Zip(w io.Writer, entries []ZipEntry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:   e.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("adding %s to zip: %w", e.Name, err)
		}
		if _, err := f.Write(e.Data); err != nil {
			return fmt.Errorf("writing %s to zip: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing zip: %w", err)
	}
	return nil
}
