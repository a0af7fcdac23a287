//go:build unix

package source

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Open maps the file read-only. Empty files cannot be mapped, so they fall
// back to an empty in-memory Source.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat input file: %w", err)
	}
	if fi.Size() == 0 {
		return &Source{}, nil
	}
	if !fi.Mode().IsRegular() {
		// Pipes and devices cannot be mapped; buffer them instead.
		return FromReader(f)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mapping input file: %w", err)
	}
	return &Source{
		data:   data,
		closer: func() error { return unix.Munmap(data) },
	}, nil
}
