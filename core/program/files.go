package program

import "os"

// replaceFile 用src原子替换dst
func replaceFile(src, dst string) error {
	return os.Rename(src, dst)
}
