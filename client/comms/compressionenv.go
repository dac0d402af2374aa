package comms

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go_fast_push/constants"
)

// CompressionEnabled reports the process-wide compression switch,
// read from the environment once and cached
var CompressionEnabled = sync.OnceValue(func() bool {
	value := os.Getenv(constants.ENV_DISABLE_COMPRESSION)
	return value != "1" && value != "ON"
})

// Extensions whose contents are already entropy coded; compressing
// them again cannot pay for itself.
var incompressibleExtensions = map[string]bool{
	".7z":   true,
	".br":   true,
	".bz2":  true,
	".flac": true,
	".gif":  true,
	".gz":   true,
	".jpeg": true,
	".jpg":  true,
	".mkv":  true,
	".mp3":  true,
	".mp4":  true,
	".ogg":  true,
	".png":  true,
	".rar":  true,
	".webm": true,
	".webp": true,
	".xz":   true,
	".zip":  true,
	".zst":  true,
}

// ShouldCompress decides per file whether the compressed flag is set.
// Tiny files and already-compressed formats are sent raw.
func ShouldCompress(fsPath string, size uint64) bool {
	if !CompressionEnabled() {
		return false
	}
	if size < constants.MIN_COMPRESS_SIZE {
		return false
	}
	return !incompressibleExtensions[strings.ToLower(filepath.Ext(fsPath))]
}
