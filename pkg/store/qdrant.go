package store

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/internal/types"
)

type QdrantConfig struct {
	Address    string
	Collection string
	APIKey     string
	TLS        bool
}

// QdrantStore searches a Qdrant collection whose payload carries the same
// fields the SQL search function returns.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	config      QdrantConfig
}

func NewQdrant(config QdrantConfig) (*QdrantStore, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("%w: qdrant address is empty", ErrMissingCredential)
	}
	if config.Collection == "" {
		config.Collection = "court_documents"
	}

	creds := insecure.NewCredentials()
	if config.TLS {
		creds = credentials.NewClientTLSFromCert(nil, "")
	}
	conn, err := grpc.NewClient(config.Address, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", config.Address, err)
	}
	return newQdrantFromConn(conn, config), nil
}

func newQdrantFromConn(conn *grpc.ClientConn, config QdrantConfig) *QdrantStore {
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		config:      config,
	}
}

func (q *QdrantStore) withAuth(ctx context.Context) context.Context {
	if q.config.APIKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", q.config.APIKey)
}

func (q *QdrantStore) Search(ctx context.Context, embedding []float32, params types.SearchParams) ([]models.Chunk, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding cannot be empty")
	}

	resp, err := q.points.Search(q.withAuth(ctx), searchPoints(q.config.Collection, embedding, params))
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		chunks = append(chunks, chunkFromPoint(r))
	}
	return chunks, nil
}

func searchPoints(collection string, embedding []float32, params types.SearchParams) *pb.SearchPoints {
	threshold := float32(params.MatchThreshold)
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         embedding,
		Limit:          uint64(params.MatchCount),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if params.DocumentType != "" {
		req.Filter = &pb.Filter{Must: []*pb.Condition{fieldMatch("document_type", params.DocumentType)}}
	}
	return req
}

func chunkFromPoint(r *pb.ScoredPoint) models.Chunk {
	c := models.Chunk{
		Similarity: round(float64(r.GetScore()), 6),
		Metadata:   make(map[string]interface{}),
	}
	if id := r.GetId(); id != nil {
		if u := id.GetUuid(); u != "" {
			c.ID = models.ChunkID(u)
		} else {
			c.ID = models.ChunkID(fmt.Sprint(id.GetNum()))
		}
	}
	for k, val := range r.GetPayload() {
		switch k {
		case "filename":
			c.Filename = val.GetStringValue()
		case "document_type":
			c.DocumentType = val.GetStringValue()
		case "content":
			c.Content = val.GetStringValue()
		case "chunk_index":
			c.ChunkIndex = int(val.GetIntegerValue())
		case "total_chunks":
			c.TotalChunks = int(val.GetIntegerValue())
		default:
			if s := val.GetStringValue(); s != "" {
				c.Metadata[k] = s
			}
		}
	}
	return c
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

func (q *QdrantStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	resp, err := q.collections.Get(q.withAuth(ctx), &pb.GetCollectionInfoRequest{CollectionName: q.config.Collection})
	if err != nil {
		return nil, fmt.Errorf("qdrant collection info: %w", err)
	}
	info := resp.GetResult()
	if info == nil {
		return nil, ErrNoStats
	}
	documents, err := q.countDocuments(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"collection":      q.config.Collection,
		"total_documents": documents,
		"total_chunks":    int(info.GetPointsCount()),
		"status":          info.GetStatus().String(),
	}, nil
}

const scrollPageSize = 1000

// countDocuments scrolls the collection reading only the filename payload and
// counts distinct filenames. Points carry chunks, so the point count overstates
// the number of documents.
func (q *QdrantStore) countDocuments(ctx context.Context) (int, error) {
	limit := uint32(scrollPageSize)
	seen := make(map[string]struct{})

	var offset *pb.PointId
	for {
		resp, err := q.points.Scroll(q.withAuth(ctx), &pb.ScrollPoints{
			CollectionName: q.config.Collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Include{
				Include: &pb.PayloadIncludeSelector{Fields: []string{"filename"}},
			}},
		})
		if err != nil {
			return 0, fmt.Errorf("qdrant scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			if name := p.GetPayload()["filename"].GetStringValue(); name != "" {
				seen[name] = struct{}{}
			}
		}
		if offset = resp.GetNextPageOffset(); offset == nil {
			return len(seen), nil
		}
	}
}

func (q *QdrantStore) Close() {
	q.conn.Close()
}
