package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
)

// SnapshotMediaType marks the snapshot layer.
const SnapshotMediaType types.MediaType = "application/vnd.halcache.snapshot.v1"

// snapshotLayer implements v1.Layer over snapshot bytes. The bytes are stored
// as-is, so digest and diff ID are the same.
type snapshotLayer struct {
	data []byte
}

func (l *snapshotLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.data))
	return h, err
}

func (l *snapshotLayer) DiffID() (v1.Hash, error) { return l.Digest() }

func (l *snapshotLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.data)), nil
}
func (l *snapshotLayer) Uncompressed() (io.ReadCloser, error) { return l.Compressed() }
func (l *snapshotLayer) Size() (int64, error)                 { return int64(len(l.data)), nil }
func (l *snapshotLayer) MediaType() (types.MediaType, error)  { return SnapshotMediaType, nil }

// Push uploads a snapshot, replacing whatever the reference pointed to.
func (r *Registry) Push(ctx context.Context, snapshot []byte) error {
	img, err := buildImage(&snapshotLayer{data: snapshot})
	if err != nil {
		return fmt.Errorf("build image: %w", err)
	}
	options := append(r.remoteOptions(), remote.WithContext(ctx), remote.WithJobs(r.concurrency))
	if err := remote.Write(r.ref, img, options...); err != nil {
		return fmt.Errorf("push %s: %w", r.ref, err)
	}
	return nil
}

// Pull downloads the snapshot stored under the reference.
func (r *Registry) Pull(ctx context.Context) ([]byte, error) {
	img, err := remote.Image(r.ref, append(r.remoteOptions(), remote.WithContext(ctx))...)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	if cfg.Config.Labels[formatLabel] != formatVersion {
		return nil, ErrNotSnapshot
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("get layers: %w", err)
	}
	if len(layers) != 1 {
		return nil, ErrNotSnapshot
	}

	rc, err := layers[0].Compressed()
	if err != nil {
		return nil, fmt.Errorf("open layer: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read layer: %w", err)
	}
	return data, nil
}

func buildImage(layer v1.Layer) (v1.Image, error) {
	img, err := mutate.AppendLayers(empty.Image, layer)
	if err != nil {
		return nil, err
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	cfg.Config.Labels = map[string]string{formatLabel: formatVersion}

	return mutate.ConfigFile(img, cfg)
}
