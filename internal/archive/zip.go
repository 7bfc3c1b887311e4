// Package archive builds the zip payloads behind getzip and logs.
// Archives land in a temporary file the caller must remove after the
// send completes; size limits are enforced before any compression
// happens so oversized requests fail fast.
package archive

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/flate"

	"fileferry/internal/shared/errs"
)

// Stats summarizes one produced archive.
type Stats struct {
	Files int
	Bytes int64 // uncompressed input bytes
}

// SubtreeSize sums regular file sizes under path. The walk runs
// parallel workers, so the accumulator is atomic.
func SubtreeSize(ctx context.Context, path string) (int64, error) {
	var total atomic.Int64
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, path, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total.Add(info.Size())
		return nil
	})
	return total.Load(), err
}

// Create archives a file or directory subtree into a temporary zip
// under tmpDir and returns its path. The input size is checked against
// maxBytes before compression; on any failure the temporary file is
// removed and never surfaced.
func Create(ctx context.Context, source, tmpDir string, maxBytes int64) (string, Stats, error) {
	const op = "getzip"

	info, err := os.Stat(source)
	if err != nil {
		return "", Stats{}, errs.FromOS(op, source, err)
	}

	var inputSize int64
	if info.IsDir() {
		inputSize, err = SubtreeSize(ctx, source)
		if err != nil {
			return "", Stats{}, errs.FromOS(op, source, err)
		}
	} else {
		inputSize = info.Size()
	}
	if maxBytes > 0 && inputSize > maxBytes {
		return "", Stats{}, errs.SizeExceeded(op, filepath.Base(source), maxBytes)
	}

	tmp, err := os.CreateTemp(tmpDir, "fileferry-*.zip")
	if err != nil {
		return "", Stats{}, errs.OSFailure(op, source, err)
	}

	stats, err := writeZip(ctx, tmp, source, info.IsDir())
	cerr := tmp.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		if ctx.Err() != nil {
			return "", Stats{}, errs.OSFailure(op, source, ctx.Err())
		}
		return "", Stats{}, errs.AsError(op, err)
	}
	return tmp.Name(), stats, nil
}

// CreateFromFiles archives an explicit file list, storing entries
// under their base names. Used for the logs bundle.
func CreateFromFiles(ctx context.Context, files []string, tmpDir string) (string, Stats, error) {
	const op = "logs"

	tmp, err := os.CreateTemp(tmpDir, "fileferry-logs-*.zip")
	if err != nil {
		return "", Stats{}, errs.OSFailure(op, tmpDir, err)
	}

	zw := newWriter(tmp)
	var stats Stats
	for _, path := range files {
		select {
		case <-ctx.Done():
			zw.Close()
			os.Remove(tmp.Name())
			return "", Stats{}, errs.OSFailure(op, path, ctx.Err())
		default:
		}
		n, err := addFile(zw, path, filepath.Base(path))
		if err != nil {
			zw.Close()
			tmp.Close()
			os.Remove(tmp.Name())
			return "", Stats{}, errs.FromOS(op, path, err)
		}
		stats.Files++
		stats.Bytes += n
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", Stats{}, errs.OSFailure(op, tmpDir, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", Stats{}, errs.OSFailure(op, tmpDir, err)
	}
	return tmp.Name(), stats, nil
}

// newWriter builds a zip writer with the faster flate implementation
// swapped in.
func newWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})
	return zw
}

func writeZip(ctx context.Context, w io.Writer, source string, isDir bool) (Stats, error) {
	zw := newWriter(w)
	var stats Stats

	if !isDir {
		n, err := addFile(zw, source, filepath.Base(source))
		if err != nil {
			zw.Close()
			return Stats{}, err
		}
		stats.Files++
		stats.Bytes += n
		return stats, zw.Close()
	}

	// zip.Writer is not safe for concurrent entries; walk single
	// threaded here.
	conf := fastwalk.Config{Follow: false, NumWorkers: 1}
	err := fastwalk.Walk(&conf, source, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || p == source {
			return nil
		}

		rel, err := filepath.Rel(source, p)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			_, err := zw.Create(rel + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		n, err := addFile(zw, p, rel)
		if err != nil {
			return err
		}
		stats.Files++
		stats.Bytes += n
		return nil
	})
	if err != nil {
		zw.Close()
		return Stats{}, err
	}
	return stats, zw.Close()
}

func addFile(zw *zip.Writer, path, name string) (int64, error) {
	entry, err := zw.Create(name)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(entry, f)
}
