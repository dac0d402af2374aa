package fileio

import (
	"os"
	"path/filepath"
)

// EntryType discriminates listing entries
type EntryType int

const (
	EntryFile EntryType = iota
	EntryDirectory
)

// Entry is one path to transfer. RelativePath is the virtual path
// sent on the wire ("/" separated); AbsolutePath locates the entry on
// the local filesystem.
type Entry struct {
	Type         EntryType
	RelativePath string
	AbsolutePath string
}

// FileListing accumulates transfer entries in pre-order, directories
// before their contents, so the receiver can create parents first
type FileListing struct {
	entries []Entry
}

// Add walks path recursively and appends its entries rooted at the
// path's base name
func (l *FileListing) Add(path string) error {
	absolute, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return err
	}
	return l.process(filepath.Base(absolute), absolute)
}

func (l *FileListing) process(relative, absolute string) error {
	info, err := os.Stat(absolute)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		l.entries = append(l.entries, Entry{
			Type:         EntryFile,
			RelativePath: relative,
			AbsolutePath: absolute,
		})
		return nil
	}

	l.entries = append(l.entries, Entry{
		Type:         EntryDirectory,
		RelativePath: relative,
		AbsolutePath: absolute,
	})

	children, err := os.ReadDir(absolute)
	if err != nil {
		return err
	}
	for _, child := range children {
		err := l.process(relative+"/"+child.Name(), filepath.Join(absolute, child.Name()))
		if err != nil {
			return err
		}
	}

	return nil
}

// Finalize returns the accumulated entries and empties the listing
func (l *FileListing) Finalize() []Entry {
	entries := l.entries
	l.entries = nil
	return entries
}
