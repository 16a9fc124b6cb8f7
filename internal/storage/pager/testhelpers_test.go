package pager

import "os"

// truncateFileForTest truncates path to n bytes, used to simulate a torn
// write left behind by a crash mid-append.
func truncateFileForTest(path string, n int64) error {
	return os.Truncate(path, n)
}
