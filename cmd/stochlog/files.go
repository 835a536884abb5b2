package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

func compressed(path string) bool { return strings.HasSuffix(path, ".zst") }

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

// openInput opens path for reading, or stdin for "-". Files ending in .zst
// are decompressed.
func openInput(stdin io.Reader, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !compressed(path) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return readCloser{Reader: dec, close: func() error {
		dec.Close()
		return f.Close()
	}}, nil
}

type writeCloser struct {
	*bufio.Writer
	close func() error
}

func (w writeCloser) Close() error {
	if err := w.Flush(); err != nil {
		w.close()
		return err
	}
	return w.close()
}

// createOutput creates path for writing, or wraps stdout for "-". Files
// ending in .zst are compressed. Close flushes everything.
func createOutput(stdout io.Writer, path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return writeCloser{Writer: bufio.NewWriter(stdout), close: func() error { return nil }}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !compressed(path) {
		return writeCloser{Writer: bufio.NewWriter(f), close: f.Close}, nil
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return writeCloser{Writer: bufio.NewWriter(enc), close: func() error {
		if err := enc.Close(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}}, nil
}
