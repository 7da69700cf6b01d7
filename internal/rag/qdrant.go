package rag

import (
	"cmp"
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written alongside every point.
const (
	payloadText   = "text"
	payloadSource = "source"
	payloadChunk  = "chunk_id"
	payloadSeq    = "seq"
)

// QdrantConfig addresses a collection over gRPC. Host defaults to localhost
// and Port to 6334. VectorSize is only needed to create the collection.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	VectorSize uint64
	APIKey     string
	UseTLS     bool
}

// QdrantIndex implements VectorIndex backed by a Qdrant collection using
// cosine distance. Each point stores an insertion sequence number so equal
// scores can be ordered by insertion, which Qdrant itself does not guarantee.
type QdrantIndex struct {
	client *qdrant.Client
	cfg    QdrantConfig
}

// NewQdrantIndex connects and creates the collection when it is missing.
// cfg is copied.
func NewQdrantIndex(ctx context.Context, in *QdrantConfig) (*QdrantIndex, error) {
	cfg := *in
	cfg.Host = cmp.Or(cfg.Host, "localhost")
	cfg.Port = cmp.Or(cfg.Port, 6334)
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: %w: collection name is required", ErrConfig)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	q := &QdrantIndex{client: client, cfg: cfg}
	if err := q.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return q, nil
}

// Client exposes the gRPC client for readiness probes.
func (q *QdrantIndex) Client() *qdrant.Client { return q.client }

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	switch exists, err := q.client.CollectionExists(ctx, q.cfg.Collection); {
	case err != nil:
		return fmt.Errorf("qdrant: failed to check collection %q: %w", q.cfg.Collection, err)
	case exists:
		return nil
	}
	if q.cfg.VectorSize == 0 {
		return fmt.Errorf("qdrant: %w: vector size is required to create collection %q", ErrConfig, q.cfg.Collection)
	}

	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}
	return nil
}

// Upsert stores chunks with their vectors. Chunk IDs must be UUID strings.
// A chunk that overwrites an existing point keeps that point's sequence
// number so re-ingesting a corpus does not reorder ties.
func (q *QdrantIndex) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	offset, err := q.Len(ctx)
	if err != nil {
		return err
	}
	prior, err := q.storedSeqs(ctx, chunks)
	if err != nil {
		return err
	}
	seqs := assignSeqs(chunks, prior, int64(offset))

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		if len(c.Vector) == 0 {
			return fmt.Errorf("qdrant: %w: chunk %s has no vector", ErrConfig, c.ID)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadText:   c.Text,
				payloadSource: c.Source,
				payloadChunk:  c.ID,
				payloadSeq:    seqs[i],
			}),
		})
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// storedSeqs returns the sequence numbers of the chunks already present in
// the collection, keyed by chunk ID.
func (q *QdrantIndex) storedSeqs(ctx context.Context, chunks []Chunk) (map[string]int64, error) {
	ids := make([]*qdrant.PointId, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, qdrant.NewIDUUID(c.ID))
	}

	existing, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.cfg.Collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayloadInclude(payloadSeq),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to read existing points: %w", err)
	}

	seqs := make(map[string]int64, len(existing))
	for _, p := range existing {
		if v, ok := p.GetPayload()[payloadSeq]; ok {
			seqs[p.GetId().GetUuid()] = v.GetIntegerValue()
		}
	}
	return seqs, nil
}

// assignSeqs numbers chunks for insertion. Known IDs reuse their prior
// number, new IDs count up from next, and a repeated ID within the batch
// shares the number of its first occurrence.
func assignSeqs(chunks []Chunk, prior map[string]int64, next int64) []int64 {
	seen := make(map[string]int64, len(chunks))
	out := make([]int64, len(chunks))
	for i, c := range chunks {
		if seq, ok := prior[c.ID]; ok {
			out[i] = seq
			continue
		}
		if seq, ok := seen[c.ID]; ok {
			out[i] = seq
			continue
		}
		seen[c.ID] = next
		out[i] = next
		next++
	}
	return out
}

// Search performs a cosine similarity search and returns the top-k hits.
// Equal scores are ordered by insertion, including ties that straddle the
// k-th position.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("qdrant: %w: k must be > 0, got %d", ErrConfig, k)
	}

	points, err := fetchThroughTies(k, func(limit uint64) ([]*qdrant.ScoredPoint, error) {
		return q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.cfg.Collection,
			Query:          qdrant.NewQuery(query...),
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	return rankPoints(points, k), nil
}

// fetchThroughTies widens the request until the result holds every point
// tied with the k-th score, or the collection runs out. query must return
// points in descending score order.
func fetchThroughTies(k int, query func(limit uint64) ([]*qdrant.ScoredPoint, error)) ([]*qdrant.ScoredPoint, error) {
	limit := uint64(k) + 1 //nolint:gosec // k > 0
	for {
		points, err := query(limit)
		if err != nil {
			return nil, err
		}
		if uint64(len(points)) < limit || points[len(points)-1].GetScore() != points[k-1].GetScore() {
			return points, nil
		}
		limit *= 2
	}
}

// rankPoints converts points to hits sorted by score then insertion
// sequence and keeps the first k.
func rankPoints(points []*qdrant.ScoredPoint, k int) []Hit {
	hits := make([]Hit, 0, len(points))
	seqs := make(map[string]int64, len(points))
	for _, r := range points {
		var c Chunk
		c.ID = r.GetId().GetUuid()
		if p := r.GetPayload(); p != nil {
			c.Text = p[payloadText].GetStringValue()
			c.Source = p[payloadSource].GetStringValue()
			if id := p[payloadChunk].GetStringValue(); id != "" {
				c.ID = id
			}
			seqs[c.ID] = p[payloadSeq].GetIntegerValue()
		}
		hits = append(hits, Hit{Chunk: c, Similarity: r.GetScore()})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return seqs[hits[i].Chunk.ID] < seqs[hits[j].Chunk.ID]
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Len returns the exact number of points in the collection.
func (q *QdrantIndex) Len(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil //nolint:gosec // collection sizes fit in int
}

// Delete removes chunks from the collection by their IDs.
func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("qdrant: close: %w", err)
	}
	return nil
}
