package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DefaultSpillThreshold is the inline-size cutoff above which node I/O
// payloads are spilled to blob storage (spec §4.2 "Payload spill").
const DefaultSpillThreshold = 256 * 1024

// MaxSpillThreshold bounds DefaultSpillThreshold's configurability
// (spec §4.2 "bounded 1 MiB").
const MaxSpillThreshold = 1024 * 1024

// BlobStore is the out-of-process payload backend a SpillingStore
// writes to once a payload crosses the threshold. pkg/engine/store/blob
// provides an S3-backed implementation; tests use an in-memory one.
type BlobStore interface {
	Put(ctx context.Context, ref string, data []byte) error
	Get(ctx context.Context, ref string) ([]byte, error)
}

// SpillingStore wraps a Store, transparently spilling oversized node
// I/O payloads to a BlobStore and resolving them back on read. It
// implements the full Store interface by embedding the wrapped store
// and only overriding NodeIOStore's two methods.
type SpillingStore struct {
	Store
	Blob      BlobStore
	Threshold int
}

// NewSpillingStore wraps base with spill-to-blob behavior. A
// threshold of 0 uses DefaultSpillThreshold; values above
// MaxSpillThreshold are clamped.
func NewSpillingStore(base Store, blob BlobStore, threshold int) *SpillingStore {
	if threshold <= 0 {
		threshold = DefaultSpillThreshold
	}
	if threshold > MaxSpillThreshold {
		threshold = MaxSpillThreshold
	}
	return &SpillingStore{Store: base, Blob: blob, Threshold: threshold}
}

func (s *SpillingStore) UpsertNodeIO(ctx context.Context, record NodeIORecord) error {
	spilledInputs, err := s.maybeSpill(ctx, record.RunID, record.NodeRef, record.Attempt, "inputs", record.Inputs)
	if err != nil {
		return fmt.Errorf("store: spilling inputs: %w", err)
	}
	record.Inputs = spilledInputs

	spilledOutputs, err := s.maybeSpill(ctx, record.RunID, record.NodeRef, record.Attempt, "outputs", record.Outputs)
	if err != nil {
		return fmt.Errorf("store: spilling outputs: %w", err)
	}
	record.Outputs = spilledOutputs

	return s.Store.UpsertNodeIO(ctx, record)
}

// ResolvePayload returns the payload's inline value, transparently
// fetching from blob storage if it was spilled, subject to sizeCeiling
// (0 means no ceiling) per spec §4.2 "Reads transparently resolve the
// reference up to a caller-supplied size ceiling".
func (s *SpillingStore) ResolvePayload(ctx context.Context, p Payload, sizeCeiling int) (map[string]any, error) {
	if !p.Spilled {
		return p.Inline, nil
	}
	if sizeCeiling > 0 && p.Size > sizeCeiling {
		return nil, fmt.Errorf("store: spilled payload size %d exceeds caller ceiling %d", p.Size, sizeCeiling)
	}
	data, err := s.Blob.Get(ctx, p.BlobRef)
	if err != nil {
		return nil, fmt.Errorf("store: fetching spilled payload %q: %w", p.BlobRef, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("store: decoding spilled payload %q: %w", p.BlobRef, err)
	}
	return out, nil
}

func (s *SpillingStore) maybeSpill(ctx context.Context, runID, nodeRef string, attempt int, field string, in Payload) (Payload, error) {
	if in.Spilled {
		return in, nil
	}
	encoded, err := json.Marshal(in.Inline)
	if err != nil {
		return Payload{}, fmt.Errorf("encoding %s: %w", field, err)
	}
	size := len(encoded)
	if size <= s.Threshold {
		return Payload{Inline: in.Inline, Size: size}, nil
	}

	ref := blobRef(runID, nodeRef, attempt, field)
	if err := s.Blob.Put(ctx, ref, encoded); err != nil {
		return Payload{}, fmt.Errorf("writing %s to blob store: %w", field, err)
	}
	return Payload{Spilled: true, BlobRef: ref, Size: size}, nil
}

func blobRef(runID, nodeRef string, attempt int, field string) string {
	return fmt.Sprintf("runs/%s/%s/%d/%s-%s.json", runID, nodeRef, attempt, field, uuid.NewString())
}
