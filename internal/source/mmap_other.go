//go:build !unix

package source

import (
	"fmt"
	"os"
)

// Open reads the whole file into memory on platforms without mmap support.
func Open(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	return &Source{data: data}, nil
}
