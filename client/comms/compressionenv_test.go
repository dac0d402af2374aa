package comms

import "testing"

func Test_ShouldCompressSizeFloor(t *testing.T) {
	if ShouldCompress("notes.txt", 100) {
		t.Fatalf("tiny files must be sent raw")
	}
	if !ShouldCompress("notes.txt", 1024*1024) {
		t.Fatalf("a large text file should be compressed")
	}
}

func Test_ShouldCompressSkipsEntropyCodedFormats(t *testing.T) {
	for _, name := range []string{"movie.mp4", "archive.zip", "photo.JPG", "bundle.tar.gz"} {
		if ShouldCompress(name, 1024*1024*1024) {
			t.Errorf("`%s` is already compressed and should be sent raw", name)
		}
	}

	for _, name := range []string{"dump.sql", "core.bin", "README"} {
		if !ShouldCompress(name, 1024*1024) {
			t.Errorf("`%s` should be compressed", name)
		}
	}
}
