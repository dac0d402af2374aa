package progress

// ReadableSize converts a byte count to a value in self-selecting
// units at 1024 boundaries
func ReadableSize(bytes uint64) (float64, string) {
	const threshold = 1024

	current := float64(bytes)
	for _, unit := range []string{"B", "KB", "MB"} {
		if current < threshold {
			return current, unit
		}
		current /= 1024
	}

	return current, "GB"
}
