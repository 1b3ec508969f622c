package store

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/internal/types"
)

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(i int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: i}}
}

func TestSearchPoints(t *testing.T) {
	req := searchPoints("court_documents", []float32{0.5, 0.25}, types.SearchParams{MatchThreshold: 0.3, MatchCount: 20})

	assert.Equal(t, "court_documents", req.GetCollectionName())
	assert.Equal(t, []float32{0.5, 0.25}, req.GetVector())
	assert.Equal(t, uint64(20), req.GetLimit())
	assert.InDelta(t, 0.3, req.GetScoreThreshold(), 1e-6)
	assert.True(t, req.GetWithPayload().GetEnable())
	assert.Nil(t, req.GetFilter())
}

func TestSearchPointsFilter(t *testing.T) {
	req := searchPoints("c", []float32{1}, types.SearchParams{MatchCount: 5, DocumentType: "court_order"})

	require.Len(t, req.GetFilter().GetMust(), 1)
	field := req.GetFilter().GetMust()[0].GetField()
	assert.Equal(t, "document_type", field.GetKey())
	assert.Equal(t, "court_order", field.GetMatch().GetKeyword())
}

func TestChunkFromPoint(t *testing.T) {
	point := &pb.ScoredPoint{
		Id:    &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 7}},
		Score: 0.8765432,
		Payload: map[string]*pb.Value{
			"filename":      stringValue("order.pdf"),
			"document_type": stringValue("court_order"),
			"content":       stringValue("the court finds"),
			"chunk_index":   intValue(1),
			"total_chunks":  intValue(3),
			"judge":         stringValue("Smith"),
		},
	}

	c := chunkFromPoint(point)
	assert.Equal(t, models.ChunkID("7"), c.ID)
	assert.Equal(t, "order.pdf", c.Filename)
	assert.Equal(t, "court_order", c.DocumentType)
	assert.Equal(t, "the court finds", c.Content)
	assert.Equal(t, 1, c.ChunkIndex)
	assert.Equal(t, 3, c.TotalChunks)
	assert.InDelta(t, 0.876543, c.Similarity, 1e-6)
	assert.Equal(t, "Smith", c.Metadata["judge"])
}

func TestChunkFromPointUUID(t *testing.T) {
	point := &pb.ScoredPoint{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "5c56c793-69f3-4fbf-87e6-c4bf54c28c26"}},
	}
	assert.Equal(t, models.ChunkID("5c56c793-69f3-4fbf-87e6-c4bf54c28c26"), chunkFromPoint(point).ID)
}

type fakePoints struct {
	pb.PointsClient
	pages    [][]string
	requests []*pb.ScrollPoints
	err      error
}

func (f *fakePoints) Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := len(f.requests)
	f.requests = append(f.requests, in)

	resp := &pb.ScrollResponse{}
	for _, name := range f.pages[page] {
		resp.Result = append(resp.Result, &pb.RetrievedPoint{
			Payload: map[string]*pb.Value{"filename": stringValue(name)},
		})
	}
	if page+1 < len(f.pages) {
		resp.NextPageOffset = &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(page + 1)}}
	}
	return resp, nil
}

type fakeCollections struct {
	pb.CollectionsClient
	points uint64
}

func (f *fakeCollections) Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	return &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{PointsCount: &f.points}}, nil
}

func TestQdrantStatsCountsDistinctDocuments(t *testing.T) {
	points := &fakePoints{pages: [][]string{
		{"order.pdf", "order.pdf", "affidavit.pdf"},
		{"order.pdf", "motion.pdf", ""},
	}}
	q := &QdrantStore{
		points:      points,
		collections: &fakeCollections{points: 6},
		config:      QdrantConfig{Collection: "court_documents"},
	}

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats["total_documents"])
	assert.Equal(t, 6, stats["total_chunks"])

	require.Len(t, points.requests, 2)
	assert.Nil(t, points.requests[0].GetOffset())
	assert.Equal(t, uint64(1), points.requests[1].GetOffset().GetNum())
	assert.Equal(t, []string{"filename"}, points.requests[0].GetWithPayload().GetInclude().GetFields())
}

func TestQdrantStatsScrollError(t *testing.T) {
	q := &QdrantStore{
		points:      &fakePoints{err: errors.New("unavailable")},
		collections: &fakeCollections{points: 1},
		config:      QdrantConfig{Collection: "c"},
	}

	_, err := q.Stats(context.Background())
	assert.ErrorContains(t, err, "qdrant scroll")
}
