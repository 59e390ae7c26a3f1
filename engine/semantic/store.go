// Package semantic is the typed gateway over the Qdrant document store. It
// owns all point operations: insert, metadata update, delete, full-text
// search, and vector similarity search. Operations are independent; there is
// no cross-call transaction guarantee.
package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
)

const (
	// DefaultThreshold is the minimum similarity for search hits.
	DefaultThreshold float32 = 0.6
	// DefaultLimit caps similarity search results.
	DefaultLimit = 3
	// fullTextLimit caps full-text search results.
	fullTextLimit = 20
)

// pointsAPI is the subset of the Qdrant points client the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	SetPayload(ctx context.Context, in *pb.SetPayloadPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of the Qdrant collections client the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Store is the sole owner of all Qdrant operations.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dims        int
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr, collection string, dims int) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dims:        dims,
	}, nil
}

// NewWithClients creates a Store backed by pre-built clients. Used in tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, dims int) *Store {
	return &Store{points: points, collections: collections, collection: collection, dims: dims}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Ping verifies the store is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: ping: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection and the full-text index on content
// if they don't exist.
func (s *Store) EnsureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	exists := false
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			exists = true
			break
		}
	}

	if !exists {
		_, err = s.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(s.dims),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("semantic: create collection %s: %w", s.collection, err)
		}
	}

	ft := pb.FieldType_FieldTypeText
	_, err = s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      fieldContent,
		FieldType:      &ft,
	})
	if err != nil {
		return fmt.Errorf("semantic: create content index: %w", err)
	}
	return nil
}

// DeleteCollection drops the collection. Used by integration test cleanup.
func (s *Store) DeleteCollection(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", s.collection, err)
	}
	return nil
}

// Insert stores a document and returns its assigned id. Content must be
// non-empty; created_at is set here if unset. A document without an
// embedding is stored with a placeholder vector and excluded from
// similarity search via the embedded payload flag.
func (s *Store) Insert(ctx context.Context, doc domain.Document) (string, error) {
	if err := domain.ValidateDocument(doc); err != nil {
		return "", fmt.Errorf("semantic: insert: %w", err)
	}

	id := uuid.NewString()
	doc.ID = id
	vector := doc.Embedding
	if len(vector) == 0 {
		vector = placeholderVector(s.dims)
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
			Payload: payloadFromDocument(doc),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("semantic: insert: %w", err)
	}
	return id, nil
}

// UpdateMetadata applies metadata to an existing document. Only the metadata
// payload key is written; content, embedding, and created_at are untouched.
func (s *Store) UpdateMetadata(ctx context.Context, id string, meta domain.Metadata) error {
	wait := true
	_, err := s.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Payload: map[string]*pb.Value{
			fieldMetadata: metadataValue(meta),
		},
		PointsSelector: idSelector(id),
	})
	if err != nil {
		return fmt.Errorf("semantic: update metadata %s: %w", id, err)
	}
	return nil
}

// Delete removes a document by id. Returns domain.ErrNotFound for unknown
// ids. Deletion is terminal.
func (s *Store) Delete(ctx context.Context, id string) error {
	got, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collection,
		Ids:            []*pb.PointId{pointID(id)},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete %s: %w", id, err)
	}
	if len(got.GetResult()) == 0 {
		return fmt.Errorf("semantic: delete %s: %w", id, domain.ErrNotFound)
	}

	wait := true
	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         idSelector(id),
	})
	if err != nil {
		return fmt.Errorf("semantic: delete %s: %w", id, err)
	}
	return nil
}

// FullTextSearch returns documents whose content matches the query text,
// in the store's native order. No similarity scores are attached.
func (s *Store) FullTextSearch(ctx context.Context, query string) ([]domain.Document, error) {
	limit := uint32(fullTextLimit)
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collection,
		Limit:          &limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{textMatch(fieldContent, query)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: full-text search: %w", err)
	}

	docs := make([]domain.Document, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		docs = append(docs, documentFromPayload(p.GetId().GetUuid(), p.GetPayload()))
	}
	return docs, nil
}

// SimilaritySearch performs k-NN search over embedded documents. Results
// score at least threshold (DefaultThreshold when <= 0) and are capped at
// limit (DefaultLimit when <= 0), in the store's native ranking.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, threshold float32, limit int) ([]domain.SearchResult, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{boolMatch(fieldEmbedded, true)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: similarity search: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		results = append(results, domain.SearchResult{
			Document:   documentFromPayload(p.GetId().GetUuid(), p.GetPayload()),
			Similarity: p.GetScore(),
		})
	}
	return results, nil
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func idSelector(id string) *pb.PointsSelector {
	return &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID(id)}},
		},
	}
}

func textMatch(key, text string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Text{Text: text}},
			},
		},
	}
}

func boolMatch(key string, val bool) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: val}},
			},
		},
	}
}

// placeholderVector is stored for documents inserted without an embedding.
// Cosine distance rejects all-zero vectors, so the first component is 1.
func placeholderVector(dims int) []float32 {
	v := make([]float32, dims)
	v[0] = 1
	return v
}
