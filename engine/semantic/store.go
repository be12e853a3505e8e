// Package semantic owns all Qdrant operations: collection lifecycle, chunk
// upserts, filtered similarity search, and per-document deletion.
package semantic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore is the sole owner of the Qdrant connection.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return &domain.VectorStoreError{Op: "list collections", Err: err}
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return &domain.VectorStoreError{Op: "create collection", Err: err}
	}
	return nil
}

// Upsert stores embedded chunks. Called by engine/ingest.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: chunkPayload(r.Chunk),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return &domain.VectorStoreError{Op: fmt.Sprintf("upsert %d points", len(records)), Err: err}
	}
	return nil
}

// DeleteBySourcePath removes every chunk of a document. Used when a source
// document changes: it is re-chunked wholesale, never patched.
func (v *VectorStore) DeleteBySourcePath(ctx context.Context, path string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("source_path", path),
					},
				},
			},
		},
	})
	if err != nil {
		return &domain.VectorStoreError{Op: "delete by source_path " + path, Err: err}
	}
	return nil
}

// Query performs k-NN similarity search with an optional metadata filter.
// Results carry the cosine score as Similarity, descending.
func (v *VectorStore) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]domain.ScoredChunk, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if cond := buildConditions(filter); len(cond) > 0 {
		req.Filter = &pb.Filter{Must: cond}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, &domain.VectorStoreError{Op: "search", Err: err}
	}

	results := make([]domain.ScoredChunk, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		results[i] = domain.ScoredChunk{
			Chunk:      chunkFromPayload(r.GetPayload()),
			Similarity: float64(r.GetScore()),
		}
	}
	return results, nil
}

// buildConditions translates a Filter into qdrant conditions.
func buildConditions(f Filter) []*pb.Condition {
	var must []*pb.Condition
	for k, val := range f.Equals {
		must = append(must, fieldMatch(k, val))
	}
	if f.ContentSubstring != "" {
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "content",
					Match: &pb.Match{
						MatchValue: &pb.Match_Text{Text: f.ContentSubstring},
					},
				},
			},
		})
	}
	if !f.ModifiedAfter.IsZero() || !f.ModifiedBefore.IsZero() {
		rng := &pb.Range{}
		if !f.ModifiedAfter.IsZero() {
			gte := float64(f.ModifiedAfter.Unix())
			rng.Gte = &gte
		}
		if !f.ModifiedBefore.IsZero() {
			lte := float64(f.ModifiedBefore.Unix())
			rng.Lte = &lte
		}
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   "modified_at",
					Range: rng,
				},
			},
		})
	}
	return must
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// chunkPayload flattens a chunk into a Qdrant payload. Tags and links are
// stored comma-joined; timestamps as epoch seconds for range filters.
func chunkPayload(c domain.Chunk) map[string]*pb.Value {
	p := map[string]*pb.Value{
		"content":           str(c.Content),
		"source_path":       str(c.SourcePath),
		"chunk_index":       intval(int64(c.Index)),
		"heading":           str(c.Heading),
		"token_count":       intval(int64(c.TokenCount)),
		"word_count":        intval(int64(c.WordCount)),
		"char_count":        intval(int64(c.CharCount)),
		"chunking_method":   str(string(c.Method)),
		"method_confidence": dbl(c.MethodConfidence),
	}
	if len(c.Meta.FrontmatterTags) > 0 {
		p["frontmatter_tags"] = str(strings.Join(c.Meta.FrontmatterTags, ","))
	}
	if len(c.Meta.ContentTags) > 0 {
		p["content_tags"] = str(strings.Join(c.Meta.ContentTags, ","))
	}
	if len(c.Meta.Links) > 0 {
		p["links"] = str(strings.Join(c.Meta.Links, ","))
	}
	if c.Meta.FileType != "" {
		p["file_type"] = str(c.Meta.FileType)
	}
	if c.Meta.ContentType != "" {
		p["content_type"] = str(c.Meta.ContentType)
	}
	if c.Meta.Topic != "" {
		p["topic"] = str(c.Meta.Topic)
	}
	if c.Meta.Category != "" {
		p["category"] = str(c.Meta.Category)
	}
	if c.Meta.Year != 0 {
		p["year"] = intval(int64(c.Meta.Year))
		p["month"] = intval(int64(c.Meta.Month))
		p["day"] = intval(int64(c.Meta.Day))
	}
	if !c.Meta.CreatedAt.IsZero() {
		p["created_at"] = intval(c.Meta.CreatedAt.Unix())
	}
	if !c.Meta.ModifiedAt.IsZero() {
		p["modified_at"] = intval(c.Meta.ModifiedAt.Unix())
	}
	return p
}

// chunkFromPayload reverses chunkPayload.
func chunkFromPayload(p map[string]*pb.Value) domain.Chunk {
	c := domain.Chunk{
		Content:          p["content"].GetStringValue(),
		SourcePath:       p["source_path"].GetStringValue(),
		Index:            int(p["chunk_index"].GetIntegerValue()),
		Heading:          p["heading"].GetStringValue(),
		TokenCount:       int(p["token_count"].GetIntegerValue()),
		WordCount:        int(p["word_count"].GetIntegerValue()),
		CharCount:        int(p["char_count"].GetIntegerValue()),
		Method:           domain.ChunkingMethod(p["chunking_method"].GetStringValue()),
		MethodConfidence: p["method_confidence"].GetDoubleValue(),
	}
	c.Meta.FrontmatterTags = splitJoined(p["frontmatter_tags"].GetStringValue())
	c.Meta.ContentTags = splitJoined(p["content_tags"].GetStringValue())
	c.Meta.Links = splitJoined(p["links"].GetStringValue())
	c.Meta.FileType = p["file_type"].GetStringValue()
	c.Meta.ContentType = p["content_type"].GetStringValue()
	c.Meta.Topic = p["topic"].GetStringValue()
	c.Meta.Category = p["category"].GetStringValue()
	c.Meta.Year = int(p["year"].GetIntegerValue())
	c.Meta.Month = int(p["month"].GetIntegerValue())
	c.Meta.Day = int(p["day"].GetIntegerValue())
	if ts := p["created_at"].GetIntegerValue(); ts != 0 {
		c.Meta.CreatedAt = timeFromUnix(ts)
	}
	if ts := p["modified_at"].GetIntegerValue(); ts != 0 {
		c.Meta.ModifiedAt = timeFromUnix(ts)
	}
	return c
}

func splitJoined(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func str(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intval(n int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}
}

func dbl(f float64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}}
}

func timeFromUnix(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}
