package indexer

import (
	"os"
	"path/filepath"
)

// writeGarbage truncates the vector matrix file so it no longer matches the
// record sequence.
func writeGarbage(dir string) error {
	return os.WriteFile(filepath.Join(dir, "vectors.bin"), []byte{0xde, 0xad}, 0644)
}
