package shard

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultExtensions are the file extensions recognized as geographic data.
var DefaultExtensions = []string{".json", ".geojson"}

// Result is the outcome of reading one file.
// Exactly one of Shard and Err is set.
type Result struct {
	Path  string
	Shard *Shard
	Err   error
}

// Reader enumerates a directory and parses its shards with a bounded worker pool.
type Reader struct {
	Extensions []string
	Workers    int
}

type job struct {
	Index int
	Path  string
}

// Files returns candidate shard files in dir, sorted by name so that
// repeated runs over an unchanged directory yield the same order.
func (r Reader) Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	exts := r.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !slices.Contains(exts, ext) {
			log.Trace().Str("file", entry.Name()).Msg("Ignoring file with unrecognized extension")
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	slices.Sort(files)

	return files, nil
}

// Read lists dir and returns a lazy sequence of parse results in enumeration order.
// Parsing runs concurrently; a failure in one file never stops the others.
// Stopping the iteration early or cancelling ctx stops dispatching new files.
func (r Reader) Read(ctx context.Context, dir string) (iter.Seq[Result], error) {
	files, err := r.Files(dir)
	if err != nil {
		return nil, err
	}

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) {
		workers = len(files)
	}

	log.Debug().
		Str("dir", dir).
		Int("files", len(files)).
		Int("workers", workers).
		Msg("Reading shards")

	return func(yield func(Result) bool) {
		ctx, cancel := context.WithCancel(ctx)

		// every slot receives at most one result, so workers never block on send
		slots := make([]chan Result, len(files))
		for i := range slots {
			slots[i] = make(chan Result, 1)
		}

		jobs := make(chan job)
		go func() {
			defer close(jobs)
			for i, path := range files {
				select {
				case jobs <- job{Index: i, Path: path}:
				case <-ctx.Done():
					return
				}
			}
		}()

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range jobs {
					slots[j.Index] <- readOne(j.Path)
				}
			}()
		}

		defer func() {
			cancel()
			wg.Wait()
		}()

		for _, slot := range slots {
			select {
			case res := <-slot:
				if !yield(res) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}, nil
}

// ReadFile parses a single shard file.
func ReadFile(path string) (*Shard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ShardError{Path: path, Err: err}
	}

	return Parse(path, data)
}

func readOne(path string) Result {
	s, err := ReadFile(path)
	if err != nil {
		return Result{Path: path, Err: err}
	}

	return Result{Path: path, Shard: s}
}
