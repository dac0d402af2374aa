package constants

const (
	Title = "Push files and directories to a remote host over TCP"

	DEFAULT_PORT         = 7155 // Default listening port
	DEFAULT_DSCP         = 0x0A // QoS for high throughput
	DEFAULT_RECEIVE_ROOT = "received"

	FILE_CHUNK_SIZE       = 128 * 1024 // Upload read buffer
	COMPRESSED_FLUSH_SIZE = 64 * 1024  // Emit compressed chunk at this size
	FILE_WRITE_BUFFER     = 256 * 1024 // Receiver write buffering

	MIN_COMPRESS_SIZE = 4096 // Files below this are sent raw

	// Set to "1" or "ON" to never flag files as compressed.
	ENV_DISABLE_COMPRESSION = "FASTPUSH_DISABLE_COMPRESSION"
)
