package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	mjson "github.com/tdewolff/minify/v2/json"

	"github.com/woozymasta/geoshard/internal/geo"
)

const jsonMediaType = "application/json"

// WriteOptions controls artifact serialization.
type WriteOptions struct {
	// Indent pretty-prints with two spaces.
	Indent bool
	// Minify strips all insignificant whitespace; it wins over Indent.
	Minify bool
}

// Encode serializes the collection as an artifact document.
func Encode(c *geo.Collection, opts WriteOptions) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal collection: %w", err)
	}

	switch {
	case opts.Minify:
		m := minify.New()
		m.AddFunc(jsonMediaType, mjson.Minify)
		data, err = m.Bytes(jsonMediaType, data)
		if err != nil {
			return nil, fmt.Errorf("minify collection: %w", err)
		}

	case opts.Indent:
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return nil, fmt.Errorf("indent collection: %w", err)
		}
		data = buf.Bytes()
	}

	return append(data, '\n'), nil
}

// WriteArtifact writes the collection to path atomically.
// Data goes to a temporary file in the same directory which is then renamed
// over the target, so readers see either the old or the new artifact.
// On success the collection ID is set to the fingerprint of the written bytes.
func WriteArtifact(path string, c *geo.Collection, opts WriteOptions) error {
	data, err := Encode(c, opts)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Error().Err(rmErr).Str("path", tmpPath).Msg("Failed to remove temporary file")
		}
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}

	c.ID = geo.Fingerprint(data)

	log.Debug().
		Str("path", path).
		Int("bytes", len(data)).
		Str("id", c.ID).
		Msg("Artifact written")

	return nil
}

// ReadArtifact loads a previously written artifact.
func ReadArtifact(path string) (*geo.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c geo.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	c.ID = geo.Fingerprint(data)

	return &c, nil
}
