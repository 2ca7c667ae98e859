// Package semantic owns all Qdrant access. Every tenant gets its own
// collection, so retrieval for one tenant can never physically reach
// another tenant's vectors regardless of what filters a caller supplies.
package semantic

import (
	"context"
	"fmt"
	"regexp"

	"github.com/northlane/ragvault/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var unsafeCollectionChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// VectorStore is the sole owner of all Qdrant operations. collectionPrefix
// together with a tenant ID deterministically names that tenant's
// collection; there is no operation that accepts a raw collection name.
type VectorStore struct {
	conn             *grpc.ClientConn
	points           pb.PointsClient
	collections      pb.CollectionsClient
	collectionPrefix string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collectionPrefix string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:             conn,
		points:           pb.NewPointsClient(conn),
		collections:      pb.NewCollectionsClient(conn),
		collectionPrefix: collectionPrefix,
	}, nil
}

// NewWithClients builds a VectorStore around existing gRPC clients, for
// tests.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, collectionPrefix string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collectionPrefix: collectionPrefix}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// collectionName deterministically derives a tenant's collection name so no
// caller can address another tenant's collection by accident.
func (v *VectorStore) collectionName(tenantID string) string {
	return v.collectionPrefix + "__" + unsafeCollectionChars.ReplaceAllString(tenantID, "_")
}

// EnsureCollection creates the tenant's collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, tenantID string, dims int) error {
	name := v.collectionName(tenantID)

	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return nil
		}
	}

	d := uint64(dims)
	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
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
		return fmt.Errorf("semantic: create collection %s: %w", name, err)
	}
	return nil
}

// DeleteCollection deletes a tenant's collection entirely. Intended for
// tenant offboarding and test teardown.
func (v *VectorStore) DeleteCollection(ctx context.Context, tenantID string) error {
	name := v.collectionName(tenantID)
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: name,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", name, err)
	}
	return nil
}

// Upsert stores embedding records into tenantID's collection. Every record
// must already carry the same TenantID; a mismatch indicates a caller bug
// and is rejected rather than silently written to the wrong tenant.
func (v *VectorStore) Upsert(ctx context.Context, tenantID string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		if r.TenantID != tenantID {
			return fmt.Errorf("semantic: record %s has tenant %q, expected %q", r.ID, r.TenantID, tenantID)
		}

		payload := make(map[string]*pb.Value, len(r.Payload))
		for k, val := range r.Payload {
			payload[k] = toQdrantValue(val)
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collectionName(tenantID),
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

func toQdrantValue(val any) *pb.Value {
	switch tv := val.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

// DeleteByDocument removes all points for a document within tenantID's
// collection.
func (v *VectorStore) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collectionName(tenantID),
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("document_id", documentID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by document %s/%s: %w", tenantID, documentID, err)
	}
	return nil
}

// Search performs k-NN similarity search within tenantID's collection.
func (v *VectorStore) Search(ctx context.Context, tenantID string, embedding []float32, topK int) ([]SearchResult, error) {
	return v.SearchFiltered(ctx, tenantID, embedding, topK, nil)
}

// SearchFiltered performs similarity search within tenantID's collection
// with additional optional metadata filters. Because the collection itself
// is tenant-scoped, these filters can never widen the search beyond the
// tenant's own data.
func (v *VectorStore) SearchFiltered(ctx context.Context, tenantID string, embedding []float32, topK int, filters map[string]string) ([]SearchResult, error) {
	var must []*pb.Condition
	for k, val := range filters {
		must = append(must, fieldMatch(k, val))
	}

	req := &pb.SearchPoints{
		CollectionName: v.collectionName(tenantID),
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	}
	if len(must) > 0 {
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		sr := SearchResult{
			ID:        r.GetId().GetUuid(),
			Score:     r.GetScore(),
			Meta:      make(map[string]string),
			Embedding: r.GetVectors().GetVector().GetData(),
		}
		for k, val := range r.GetPayload() {
			switch k {
			case "content":
				sr.Content = val.GetStringValue()
			case "document_id":
				sr.DocumentID = val.GetStringValue()
			case "chunk_index":
				sr.ChunkIndex = int(val.GetIntegerValue())
			default:
				sr.Meta[k] = val.GetStringValue()
			}
		}
		results[i] = sr
	}
	return results, nil
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
