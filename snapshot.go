package vecdb

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/vecdb/metadata"
)

// Compression selects the snapshot payload codec.
type Compression byte

const (
	// CompressionNone stores the gob payload uncompressed.
	CompressionNone Compression = iota
	// CompressionZstd compresses with zstd (default).
	CompressionZstd
	// CompressionLZ4 compresses with lz4.
	CompressionLZ4
)

// snapshotMagic identifies a vecdb collection snapshot stream.
var snapshotMagic = [4]byte{'V', 'D', 'B', 'S'}

const snapshotVersion = 1

// SnapshotOptions tunes snapshot encoding.
type SnapshotOptions struct {
	Compression Compression
}

type snapshotRecord struct {
	ID       uint64
	Vector   []float32
	Metadata metadata.Document
	Document string
}

type snapshotState struct {
	Config     CollectionConfig
	NextID     uint64
	Records    []snapshotRecord
	Tombstones []byte
	Index      []byte
}

// Snapshot writes a point-in-time copy of the collection to w: config,
// records, tombstones and the serialized index, behind a small header
// carrying format version and compression codec.
func (c *Collection) Snapshot(ctx context.Context, w io.Writer, optFns ...func(o *SnapshotOptions)) error {
	opts := SnapshotOptions{Compression: CompressionZstd}
	for _, fn := range optFns {
		fn(&opts)
	}

	c.mu.RLock()
	state, err := c.snapshotStateLocked()
	c.mu.RUnlock()

	if err == nil {
		err = writeSnapshot(w, state, opts.Compression)
	}

	c.logger.LogSnapshot(ctx, c.cfg.Name, err)
	return err
}

func (c *Collection) snapshotStateLocked() (*snapshotState, error) {
	ids := make([]uint64, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	records := make([]snapshotRecord, 0, len(ids))
	for _, id := range ids {
		rec := c.records[id]
		records = append(records, snapshotRecord{
			ID:       rec.ID,
			Vector:   rec.Vector,
			Metadata: rec.Metadata,
			Document: rec.Document,
		})
	}

	tombstones, err := c.tombstones.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal tombstones: %w", err)
	}

	indexData, err := c.idx.GobEncode()
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}

	return &snapshotState{
		Config:     c.cfg,
		NextID:     c.nextID,
		Records:    records,
		Tombstones: tombstones,
		Index:      indexData,
	}, nil
}

func writeSnapshot(w io.Writer, state *snapshotState, codec Compression) error {
	header := make([]byte, 0, 6)
	header = append(header, snapshotMagic[:]...)
	header = append(header, snapshotVersion, byte(codec))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	payload, closePayload, err := compressWriter(w, codec)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(payload).Encode(state); err != nil {
		_ = closePayload()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return closePayload()
}

func compressWriter(w io.Writer, codec Compression) (io.Writer, func() error, error) {
	switch codec {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd writer: %w", err)
		}
		return zw, zw.Close, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	default:
		return nil, nil, &ErrConfiguration{Option: "Compression", Value: codec}
	}
}

// LoadCollection restores a collection previously written by Snapshot.
// The restored collection is standalone; use DB.RestoreCollection to
// register it with a DB.
func LoadCollection(r io.Reader, optFns ...func(o *Options)) (*Collection, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}

	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if [4]byte(header[:4]) != snapshotMagic {
		return nil, fmt.Errorf("%x: %w", header[:4], errBadSnapshot)
	}
	if header[4] != snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d: %w", header[4], errBadSnapshot)
	}

	payload, err := decompressReader(r, Compression(header[5]))
	if err != nil {
		return nil, err
	}

	var state snapshotState
	if err := gob.NewDecoder(payload).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return restoreCollection(&state, opts.Logger)
}

var errBadSnapshot = fmt.Errorf("not a vecdb snapshot")

func decompressReader(r io.Reader, codec Compression) (io.Reader, error) {
	switch codec {
	case CompressionNone:
		return r, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil
	default:
		return nil, fmt.Errorf("unknown compression %d: %w", codec, errBadSnapshot)
	}
}

func restoreCollection(state *snapshotState, logger *Logger) (*Collection, error) {
	coll, err := newCollection(state.Config, logger)
	if err != nil {
		return nil, err
	}

	if err := coll.idx.GobDecode(state.Index); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}

	tombstones := roaring64.New()
	if len(state.Tombstones) > 0 {
		if err := tombstones.UnmarshalBinary(state.Tombstones); err != nil {
			return nil, fmt.Errorf("unmarshal tombstones: %w", err)
		}
	}
	coll.tombstones = tombstones
	coll.nextID = state.NextID

	for _, rec := range state.Records {
		coll.records[rec.ID] = &Record{
			ID:       rec.ID,
			Vector:   rec.Vector,
			Metadata: rec.Metadata,
			Document: rec.Document,
		}
	}

	return coll, nil
}
