package file

import "os"

// EnsureDir creates dir (and parents) if it does not exist yet.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
