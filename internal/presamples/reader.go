package presamples

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"landbalancer/internal/blob"
	"landbalancer/internal/samples"
)

// Loaded is a package read back from a blob store.
type Loaded struct {
	Package  Package
	Metadata Datapackage
	Data     []MatrixData
}

// Load reads the package id under dir (DefaultDir when empty), verifying checksums and shapes.
func Load(ctx context.Context, store blob.Store, dir, id string) (*Loaded, error) {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		dir = DefaultDir
	}
	prefix := path.Join(dir, id)
	raw, url, err := readBlob(ctx, store, path.Join(prefix, MetadataFile))
	if err != nil {
		return nil, err
	}
	var meta Datapackage
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MetadataFile, err)
	}
	out := &Loaded{Package: Package{ID: meta.ID, Dir: prefix, URL: url}, Metadata: meta}
	for _, res := range meta.Resources {
		md, err := loadResource(ctx, store, prefix, res)
		if err != nil {
			return nil, fmt.Errorf("resource %d: %w", res.Index, err)
		}
		if md.Samples.Cols() != meta.NCols {
			return nil, fmt.Errorf("resource %d: %w: %d columns, metadata says %d", res.Index, samples.ErrShapeMismatch, md.Samples.Cols(), meta.NCols)
		}
		out.Data = append(out.Data, md)
	}
	return out, nil
}

func loadResource(ctx context.Context, store blob.Store, prefix string, res Resource) (MatrixData, error) {
	rawSamples, _, err := readBlob(ctx, store, path.Join(prefix, res.Samples.Filepath))
	if err != nil {
		return MatrixData{}, err
	}
	if got := md5Hex(rawSamples); got != res.Samples.MD5 {
		return MatrixData{}, fmt.Errorf("%s: checksum %s, want %s", res.Samples.Filepath, got, res.Samples.MD5)
	}
	m, err := decodeNPY(rawSamples)
	if err != nil {
		return MatrixData{}, err
	}
	rawIndices, _, err := readBlob(ctx, store, path.Join(prefix, res.Indices.Filepath))
	if err != nil {
		return MatrixData{}, err
	}
	if got := md5Hex(rawIndices); got != res.Indices.MD5 {
		return MatrixData{}, fmt.Errorf("%s: checksum %s, want %s", res.Indices.Filepath, got, res.Indices.MD5)
	}
	var indices []samples.MatrixIndex
	if err := json.Unmarshal(rawIndices, &indices); err != nil {
		return MatrixData{}, fmt.Errorf("decode %s: %w", res.Indices.Filepath, err)
	}
	if len(indices) != m.Rows() {
		return MatrixData{}, fmt.Errorf("%w: %d indices for %d rows", samples.ErrShapeMismatch, len(indices), m.Rows())
	}
	return MatrixData{Samples: m, Indices: indices, Type: samples.Partition(res.Type), Matrix: res.Matrix, Label: res.Label}, nil
}

func readBlob(ctx context.Context, store blob.Store, key string) ([]byte, string, error) {
	info, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", key, err)
	}
	return b, info.URL, nil
}
