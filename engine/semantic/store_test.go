package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/ClippingsAI/clippings-mvp/engine/domain"
)

// --- Mocks ---

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertErr  error
	deleteErr  error
	getResp    *pb.GetResponse
	getErr     error
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
	scrollReq  *pb.ScrollPoints
	scrollResp *pb.ScrollResponse
	scrollErr  error
	setReq     *pb.SetPayloadPoints
	setErr     error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Delete(_ context.Context, _ *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	return &pb.PointsOperationResponse{}, m.deleteErr
}

func (m *mockPoints) Get(_ context.Context, _ *pb.GetPoints, _ ...grpc.CallOption) (*pb.GetResponse, error) {
	return m.getResp, m.getErr
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	m.scrollReq = in
	return m.scrollResp, m.scrollErr
}

func (m *mockPoints) SetPayload(_ context.Context, in *pb.SetPayloadPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.setReq = in
	return &pb.PointsOperationResponse{}, m.setErr
}

func (m *mockPoints) CreateFieldIndex(_ context.Context, _ *pb.CreateFieldIndexCollection, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	return &pb.PointsOperationResponse{}, nil
}

type mockCollections struct {
	listResp *pb.ListCollectionsResponse
	listErr  error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, _ *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{}, nil
}

func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{}, nil
}

// --- Tests ---

func TestInsertAssignsIDAndEmbeddedFlag(t *testing.T) {
	points := &mockPoints{}
	s := NewWithClients(points, &mockCollections{}, "test", 4)

	id, err := s.Insert(context.Background(), domain.Document{
		Content:   "the article text",
		Embedding: []float32{0.1, 0.2, 0.3, 0.4},
		SourceURL: "https://a.example/story",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == "" {
		t.Fatal("insert must assign an id")
	}

	p := points.upsertReq.GetPoints()[0]
	if p.GetId().GetUuid() != id {
		t.Fatal("point id must match returned id")
	}
	payload := p.GetPayload()
	if payload[fieldContent].GetStringValue() != "the article text" {
		t.Fatal("content payload missing")
	}
	if !payload[fieldEmbedded].GetBoolValue() {
		t.Fatal("embedded flag should be true when an embedding is present")
	}
	if payload[fieldCreatedAt].GetStringValue() == "" {
		t.Fatal("created_at must be set at insert time")
	}
}

func TestInsertRejectsEmptyContent(t *testing.T) {
	points := &mockPoints{}
	s := NewWithClients(points, &mockCollections{}, "test", 4)

	_, err := s.Insert(context.Background(), domain.Document{Content: "   "})
	if !errors.Is(err, domain.ErrEmptyContent) {
		t.Fatalf("got %v, want ErrEmptyContent", err)
	}
	if points.upsertReq != nil {
		t.Fatal("no upsert should happen for invalid documents")
	}
}

func TestInsertWithoutEmbeddingUsesPlaceholder(t *testing.T) {
	points := &mockPoints{}
	s := NewWithClients(points, &mockCollections{}, "test", 4)

	if _, err := s.Insert(context.Background(), domain.Document{Content: "text only"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p := points.upsertReq.GetPoints()[0]
	if p.GetPayload()[fieldEmbedded].GetBoolValue() {
		t.Fatal("embedded flag should be false without an embedding")
	}
	vec := p.GetVectors().GetVector().GetData()
	if len(vec) != 4 || vec[0] != 1 {
		t.Fatalf("placeholder vector wrong: %v", vec)
	}
}

func TestSimilaritySearchDefaultsAndMapping(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	points := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{{
				Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "doc-1"}},
				Score: 0.91,
				Payload: payloadFromDocument(domain.Document{
					Content:   "budget vote",
					Embedding: []float32{1},
					SourceURL: "https://a.example",
					CreatedAt: created,
					Metadata:  &domain.Metadata{PublisherName: "The Ithaca Voice", Categories: []string{"politics"}},
				}),
			}},
		},
	}
	s := NewWithClients(points, &mockCollections{}, "test", 4)

	results, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0, 0}, 0, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	req := points.searchReq
	if req.GetLimit() != DefaultLimit {
		t.Fatalf("limit = %d, want default %d", req.GetLimit(), DefaultLimit)
	}
	if req.GetScoreThreshold() != DefaultThreshold {
		t.Fatalf("threshold = %v, want default %v", req.GetScoreThreshold(), DefaultThreshold)
	}
	if len(req.GetFilter().GetMust()) == 0 {
		t.Fatal("search must filter out placeholder-vector documents")
	}

	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.ID != "doc-1" || r.Similarity != 0.91 {
		t.Fatalf("result mapping wrong: %+v", r)
	}
	if !r.CreatedAt.Equal(created) {
		t.Fatalf("created_at round-trip: %v", r.CreatedAt)
	}
	if r.Metadata == nil || r.Metadata.PublisherName != "The Ithaca Voice" {
		t.Fatalf("metadata round-trip: %+v", r.Metadata)
	}
}

func TestDeleteNotFound(t *testing.T) {
	points := &mockPoints{getResp: &pb.GetResponse{}}
	s := NewWithClients(points, &mockCollections{}, "test", 4)

	err := s.Delete(context.Background(), "missing-id")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteExisting(t *testing.T) {
	points := &mockPoints{
		getResp: &pb.GetResponse{Result: []*pb.RetrievedPoint{{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "doc-1"}},
		}}},
	}
	s := NewWithClients(points, &mockCollections{}, "test", 4)

	if err := s.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestUpdateMetadataTouchesOnlyMetadata(t *testing.T) {
	points := &mockPoints{}
	s := NewWithClients(points, &mockCollections{}, "test", 4)

	meta := domain.Metadata{
		PublisherName: "The Ithaca Voice",
		Author:        "A. Reporter",
		NamedEntities: domain.NamedEntities{Locations: []string{"Ithaca"}},
		Categories:    []string{"politics", "local"},
	}
	if err := s.UpdateMetadata(context.Background(), "doc-1", meta); err != nil {
		t.Fatalf("update: %v", err)
	}

	payload := points.setReq.GetPayload()
	if len(payload) != 1 {
		t.Fatalf("update must write only the metadata key, wrote %d keys", len(payload))
	}
	if _, ok := payload[fieldMetadata]; !ok {
		t.Fatal("metadata key missing from payload")
	}
	got := metadataFromValue(payload[fieldMetadata])
	if got.Author != "A. Reporter" || len(got.Categories) != 2 {
		t.Fatalf("metadata encode/decode: %+v", got)
	}
	if len(got.NamedEntities.Locations) != 1 || got.NamedEntities.Locations[0] != "Ithaca" {
		t.Fatalf("entities encode/decode: %+v", got.NamedEntities)
	}
}

func TestFullTextSearchUsesTextMatch(t *testing.T) {
	points := &mockPoints{
		scrollResp: &pb.ScrollResponse{Result: []*pb.RetrievedPoint{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "doc-2"}},
			Payload: payloadFromDocument(domain.Document{Content: "school budget passed", Embedding: []float32{1}}),
		}}},
	}
	s := NewWithClients(points, &mockCollections{}, "test", 4)

	docs, err := s.FullTextSearch(context.Background(), "budget")
	if err != nil {
		t.Fatalf("full-text search: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "school budget passed" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	cond := points.scrollReq.GetFilter().GetMust()[0]
	if cond.GetField().GetMatch().GetText() != "budget" {
		t.Fatal("scroll filter should text-match content")
	}
}

func TestSearchErrorPropagates(t *testing.T) {
	boom := errors.New("qdrant down")
	s := NewWithClients(&mockPoints{searchErr: boom}, &mockCollections{}, "test", 4)
	if _, err := s.SimilaritySearch(context.Background(), []float32{1}, 0.6, 3); !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped boom", err)
	}
}

func TestDocumentPayloadRoundTrip(t *testing.T) {
	created := time.Date(2023, 11, 5, 8, 30, 0, 0, time.UTC)
	doc := domain.Document{
		Content:   "content",
		Embedding: []float32{1, 2},
		SourceURL: "https://b.example",
		CreatedAt: created,
		Metadata: &domain.Metadata{
			PublisherName: "Pub",
			Author:        "Auth",
			NamedEntities: domain.NamedEntities{
				Organizations: []string{"Org"},
				Persons:       []string{"Person"},
				Dates:         []string{"2023-11-05"},
			},
			Categories: []string{"a", "b", "c"},
		},
	}

	got := documentFromPayload("id-1", payloadFromDocument(doc))
	if got.ID != "id-1" || got.Content != doc.Content || got.SourceURL != doc.SourceURL {
		t.Fatalf("round trip: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at: %v", got.CreatedAt)
	}
	m := got.Metadata
	if m == nil || m.PublisherName != "Pub" || m.Author != "Auth" {
		t.Fatalf("metadata: %+v", m)
	}
	if len(m.NamedEntities.Organizations) != 1 || len(m.NamedEntities.Persons) != 1 || len(m.NamedEntities.Dates) != 1 {
		t.Fatalf("entities: %+v", m.NamedEntities)
	}
	if len(m.Categories) != 3 {
		t.Fatalf("categories: %v", m.Categories)
	}
}
