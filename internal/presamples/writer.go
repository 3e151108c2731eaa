package presamples

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // checksum, not a security boundary
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"landbalancer/internal/blob"
	"landbalancer/internal/samples"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultDir is the blob prefix packages are written under when Options.Dir is empty.
	DefaultDir = "presamples"
	// MetadataFile names the package descriptor.
	MetadataFile = "datapackage.json"

	contentTypeNPY  = "application/octet-stream"
	contentTypeJSON = "application/json"
)

// ErrPackageExists is returned when a package id is taken and Overwrite is false.
var ErrPackageExists = errors.New("presamples: package already exists")

// Options configures a package write.
type Options struct {
	Name      string // human readable name, optional
	ID        string // package id; generated when empty
	Overwrite bool   // replace an existing package with the same id
	Dir       string // blob prefix; DefaultDir when empty
	Seed      Seed   // column order policy; sequential by default
	Group     string // parameter group label recorded in the metadata
}

// Package identifies a written package.
type Package struct {
	ID  string `json:"id"`
	Dir string `json:"dir"`
	URL string `json:"url,omitempty"`
}

// Datapackage is the content of datapackage.json.
type Datapackage struct {
	Name      string     `json:"name,omitempty"`
	ID        string     `json:"id"`
	Profile   string     `json:"profile"`
	Seed      Seed       `json:"seed"`
	NCols     int        `json:"ncols"`
	Group     string     `json:"group,omitempty"`
	Created   time.Time  `json:"created"`
	Resources []Resource `json:"resources"`
}

// Resource describes one matrix partition of a package.
type Resource struct {
	Index   int      `json:"index"`
	Samples FileSpec `json:"samples"`
	Indices FileSpec `json:"indices"`
	Matrix  string   `json:"matrix"`
	Type    string   `json:"type"`
	Label   string   `json:"label"`
	Profile string   `json:"profile"`
}

// FileSpec describes one stored file.
type FileSpec struct {
	Filepath  string `json:"filepath"`
	MD5       string `json:"md5"`
	Format    string `json:"format"`
	Mediatype string `json:"mediatype"`
	Shape     []int  `json:"shape,omitempty"`
	Dtype     string `json:"dtype,omitempty"`
}

// Writer persists packages to a blob store.
type Writer struct {
	store  blob.Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithLogger sets the writer logger.
func WithLogger(l *zap.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) WriterOption { return func(w *Writer) { w.now = now } }

// NewWriter returns a writer on store.
func NewWriter(store blob.Store, opts ...WriterOption) *Writer {
	w := &Writer{
		store:  store,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write stores data as a package under <Dir>/<ID>/.
//
// Every file is encoded before the store is touched. When Overwrite
// replaces a package and a later write fails, the partial new package is
// removed and the previous files are put back; a process crash midway can
// still leave a partial package.
func (w *Writer) Write(ctx context.Context, data []MatrixData, opts Options) (Package, error) {
	ncols, err := validate(data)
	if err != nil {
		return Package{}, err
	}
	id := opts.ID
	if id == "" {
		id = w.newID()
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return Package{}, fmt.Errorf("invalid package id %q", id)
	}
	dir := strings.Trim(opts.Dir, "/")
	if dir == "" {
		dir = DefaultDir
	}
	prefix := path.Join(dir, id)

	meta := Datapackage{
		Name:    opts.Name,
		ID:      id,
		Profile: "data-package",
		Seed:    opts.Seed,
		NCols:   ncols,
		Group:   opts.Group,
		Created: w.now(),
	}
	var files []stagedFile
	for i, md := range data {
		res, staged, err := renderResource(prefix, id, i, md)
		if err != nil {
			return Package{}, fmt.Errorf("encode resource %d: %w", i, err)
		}
		meta.Resources = append(meta.Resources, res)
		files = append(files, staged...)
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Package{}, err
	}
	files = append(files, stagedFile{key: path.Join(prefix, MetadataFile), body: b, contentType: contentTypeJSON})

	previous, err := w.clear(ctx, prefix, opts.Overwrite)
	if err != nil {
		return Package{}, err
	}
	var info blob.Info
	for i, f := range files {
		if info, err = w.store.Put(ctx, f.key, bytes.NewReader(f.body), blob.PutOptions{ContentType: f.contentType, Metadata: f.metadata}); err != nil {
			err = fmt.Errorf("write %s: %w", f.key, err)
			return Package{}, errors.Join(err, w.restore(ctx, files[:i], previous))
		}
	}
	w.logger.Debug("presample package written",
		zap.String("id", id),
		zap.String("dir", prefix),
		zap.Int("resources", len(meta.Resources)),
		zap.Int("ncols", ncols),
	)
	return Package{ID: id, Dir: prefix, URL: info.URL}, nil
}

type stagedFile struct {
	key         string
	body        []byte
	contentType string
	metadata    map[string]string
}

func validate(data []MatrixData) (int, error) {
	if len(data) == 0 {
		return 0, errors.New("presamples: no matrix data")
	}
	ncols := data[0].Samples.Cols()
	for i, md := range data {
		if md.Samples == nil {
			return 0, fmt.Errorf("resource %d: missing samples", i)
		}
		if md.Samples.Rows() != len(md.Indices) {
			return 0, fmt.Errorf("resource %d: %w: %d rows, %d indices", i, samples.ErrShapeMismatch, md.Samples.Rows(), len(md.Indices))
		}
		if md.Samples.Cols() != ncols {
			return 0, fmt.Errorf("resource %d: %w: %d columns, want %d", i, samples.ErrShapeMismatch, md.Samples.Cols(), ncols)
		}
	}
	if ncols == 0 {
		return 0, errors.New("presamples: zero columns")
	}
	return ncols, nil
}

// clear refuses or removes an existing package at prefix. Removed files are
// returned in memory so a failed write can put them back.
func (w *Writer) clear(ctx context.Context, prefix string, overwrite bool) ([]stagedFile, error) {
	existing, err := w.store.List(ctx, prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	if len(existing) == 0 {
		return nil, nil
	}
	if !overwrite {
		return nil, fmt.Errorf("%w: %s", ErrPackageExists, prefix)
	}
	previous := make([]stagedFile, 0, len(existing))
	for _, info := range existing {
		f, err := w.read(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		previous = append(previous, f)
	}
	for i, f := range previous {
		if _, err := w.store.Delete(ctx, f.key); err != nil {
			err = fmt.Errorf("delete %s: %w", f.key, err)
			return nil, errors.Join(err, w.restore(ctx, nil, previous[:i]))
		}
	}
	w.logger.Info("replaced existing presample package", zap.String("dir", prefix), zap.Int("files", len(previous)))
	return previous, nil
}

func (w *Writer) read(ctx context.Context, key string) (stagedFile, error) {
	info, rc, err := w.store.Get(ctx, key)
	if err != nil {
		return stagedFile{}, fmt.Errorf("read %s: %w", key, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return stagedFile{}, fmt.Errorf("read %s: %w", key, err)
	}
	return stagedFile{key: key, body: body, contentType: info.ContentType, metadata: info.Metadata}, nil
}

// restore deletes the written files and puts the previous package back.
func (w *Writer) restore(ctx context.Context, written, previous []stagedFile) error {
	var errs []error
	for _, f := range written {
		if _, err := w.store.Delete(ctx, f.key); err != nil {
			errs = append(errs, fmt.Errorf("remove partial %s: %w", f.key, err))
		}
	}
	for _, f := range previous {
		if _, err := w.store.Put(ctx, f.key, bytes.NewReader(f.body), blob.PutOptions{ContentType: f.contentType, Metadata: f.metadata}); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", f.key, err))
		}
	}
	if len(previous) > 0 && len(errs) == 0 {
		w.logger.Warn("package write failed, previous package restored", zap.Int("files", len(previous)))
	}
	return errors.Join(errs...)
}

func renderResource(prefix, id string, i int, md MatrixData) (Resource, []stagedFile, error) {
	var npy bytes.Buffer
	if err := encodeNPY(&npy, md.Samples); err != nil {
		return Resource{}, nil, err
	}
	indices, err := json.Marshal(md.Indices)
	if err != nil {
		return Resource{}, nil, err
	}
	samplesName := fmt.Sprintf("%s.%d.samples.npy", id, i)
	indicesName := fmt.Sprintf("%s.%d.indices.json", id, i)
	files := []stagedFile{
		{key: path.Join(prefix, samplesName), body: npy.Bytes(), contentType: contentTypeNPY},
		{key: path.Join(prefix, indicesName), body: indices, contentType: contentTypeJSON},
	}
	return Resource{
		Index: i,
		Samples: FileSpec{
			Filepath:  samplesName,
			MD5:       md5Hex(npy.Bytes()),
			Format:    "npy",
			Mediatype: contentTypeNPY,
			Shape:     []int{md.Samples.Rows(), md.Samples.Cols()},
			Dtype:     "float64",
		},
		Indices: FileSpec{
			Filepath:  indicesName,
			MD5:       md5Hex(indices),
			Format:    "json",
			Mediatype: contentTypeJSON,
		},
		Matrix:  md.Matrix,
		Type:    string(md.Type),
		Label:   md.Label,
		Profile: "data-resource",
	}, files, nil
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
