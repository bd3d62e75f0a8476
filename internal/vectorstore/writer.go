// Package vectorstore writes embedding points into a Qdrant collection and
// exposes the parameter pass-through query used by the CLI. Collection
// dimension conflicts are resolved by targeting a dimension-suffixed
// collection; the existing collection is never altered.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Sumatoshi-tech/logfang/internal/checkpoint"
	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// DefaultCollection is the target collection before dimension resolution.
const DefaultCollection = "logs_embedded"

// qwenDimension is the dimension whose suffixed collection carries the
// model name instead of a numeric suffix.
const qwenDimension = 1024

// qwenSuffix names the 1024-dimension collection.
const qwenSuffix = "_qwen3"

// Upsert retry policy.
const (
	maxUpsertAttempts = 3
	upsertBackoffBase = time.Second
)

// Keyword payload fields indexed for filtering.
var keywordIndexFields = []string{"severity", "service_name", "resource_type", "dataset", "table_name"}

// Integer payload fields indexed for time filtering.
var integerIndexFields = []string{"timestamp.year", "timestamp.month", "timestamp.day", "timestamp.hour"}

// api is the subset of the Qdrant client the writer uses.
type api interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// Writer upserts embedding points into the resolved collection.
type Writer struct {
	client  api
	metrics *checkpoint.Registry
	logger  *slog.Logger

	base      string
	dimension uint64

	mu         sync.Mutex
	collection string
	ready      bool
}

// NewWriter creates a Writer targeting base with the given vector
// dimension. The collection is created (or re-targeted) lazily on first use.
func NewWriter(client api, base string, dimension int, metrics *checkpoint.Registry, logger *slog.Logger) *Writer {
	if base == "" {
		base = DefaultCollection
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		client:    client,
		metrics:   metrics,
		logger:    logger,
		base:      base,
		dimension: uint64(dimension),
	}
}

// CollectionNameForDim returns the collection a writer of the given
// dimension targets when base already holds vectors of another size.
func CollectionNameForDim(base string, dimension uint64) string {
	if dimension == qwenDimension {
		return base + qwenSuffix
	}

	return base + "_v" + strconv.FormatUint(dimension, 10)
}

// Collection returns the resolved collection name; empty until Ensure ran.
func (w *Writer) Collection() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.collection
}

// Ensure resolves the target collection, creating it with cosine distance
// and the payload indexes when missing. An existing collection with a
// different dimension switches the target to a suffixed collection.
func (w *Writer) Ensure(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ready {
		return nil
	}

	target := w.base

	exists, err := w.client.CollectionExists(ctx, target)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", target, err)
	}

	if exists {
		existing, infoErr := w.collectionDimension(ctx, target)
		if infoErr != nil {
			return infoErr
		}

		if existing != w.dimension {
			target = CollectionNameForDim(w.base, w.dimension)

			w.logger.Warn("collection dimension mismatch, switching target",
				slog.String("collection", w.base),
				slog.Uint64("existing_dim", existing),
				slog.Uint64("writer_dim", w.dimension),
				slog.String("target", target),
			)

			exists, err = w.client.CollectionExists(ctx, target)
			if err != nil {
				return fmt.Errorf("check collection %s: %w", target, err)
			}
		}
	}

	if !exists {
		createErr := w.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: target,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     w.dimension,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if createErr != nil {
			return fmt.Errorf("create collection %s: %w", target, createErr)
		}

		indexErr := w.createIndexes(ctx, target)
		if indexErr != nil {
			return indexErr
		}
	}

	w.collection = target
	w.ready = true

	return nil
}

func (w *Writer) collectionDimension(ctx context.Context, name string) (uint64, error) {
	info, err := w.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("collection info %s: %w", name, err)
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, fmt.Errorf("collection info %s: no vector params", name)
	}

	return params.GetSize(), nil
}

func (w *Writer) createIndexes(ctx context.Context, collection string) error {
	for _, field := range keywordIndexFields {
		_, err := w.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("index %s on %s: %w", field, collection, err)
		}
	}

	for _, field := range integerIndexFields {
		_, err := w.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
		})
		if err != nil {
			return fmt.Errorf("index %s on %s: %w", field, collection, err)
		}
	}

	return nil
}

// Upsert writes a batch of points with wait=true, retrying transient
// failures. Latency and outcome are recorded for the tuner.
func (w *Writer) Upsert(ctx context.Context, points []logmodel.EmbeddingPoint) error {
	if len(points) == 0 {
		return nil
	}

	err := w.Ensure(ctx)
	if err != nil {
		return err
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))

	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.PointID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}

	var lastErr error

	for attempt := range maxUpsertAttempts {
		if attempt > 0 {
			backoff := upsertBackoffBase << (attempt - 1)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		start := time.Now()

		_, upsertErr := w.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: w.Collection(),
			Wait:           qdrant.PtrOf(true),
			Points:         structs,
		})

		w.recordLatency(ctx, time.Since(start))

		if upsertErr == nil {
			return nil
		}

		lastErr = upsertErr
		w.recordError(ctx)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("upsert %d points: %w", len(points), lastErr)
}

func (w *Writer) recordLatency(ctx context.Context, d time.Duration) {
	if w.metrics == nil {
		return
	}

	err := w.metrics.RecordLatency(ctx, checkpoint.ServiceVector, float64(d.Milliseconds()))
	if err != nil {
		w.logger.Debug("latency sample dropped", slog.String("error", err.Error()))
	}
}

func (w *Writer) recordError(ctx context.Context) {
	if w.metrics == nil {
		return
	}

	err := w.metrics.RecordError(ctx, checkpoint.ServiceVector)
	if err != nil {
		w.logger.Debug("error sample dropped", slog.String("error", err.Error()))
	}
}
