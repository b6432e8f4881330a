package vault

import (
	"path/filepath"
	"time"
)

func dirOf(path string) string {
	return filepath.Dir(path)
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}
