// Package qdrant implements vector.Repository over the Qdrant gRPC API.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/efebarandurmaz/docrag/internal/rag"
	"github.com/efebarandurmaz/docrag/internal/vector"
)

const (
	payloadSource = "source"
	payloadText   = "text"
)

// Config selects the Qdrant endpoint and collection layout.
type Config struct {
	Host       string
	Port       int
	Collection string
	Dimension  int
	Distance   string // "cosine", "dot", "euclid", "manhattan"
}

// Repository implements vector.Repository using Qdrant.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

var _ vector.Repository = (*Repository)(nil)

// New dials Qdrant and makes sure the collection exists.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, &rag.StoreUnavailableError{Op: "connect", Err: err}
	}

	r := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg.Collection)
	r.conn = conn
	if err := r.EnsureCollection(ctx, cfg.Dimension, cfg.Distance); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return r, nil
}

// NewWithClients builds a repository over existing gRPC clients.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string) *Repository {
	return &Repository{
		points:      points,
		collections: collections,
		collection:  collection,
	}
}

// EnsureCollection creates the collection when it is missing.
func (r *Repository) EnsureCollection(ctx context.Context, dimension int, distance string) error {
	resp, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection})
	if err != nil {
		return classify("collection exists", err)
	}
	if resp.GetResult().GetExists() {
		return nil
	}

	dist, err := parseDistance(distance)
	if err != nil {
		return err
	}
	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     uint64(dimension),
			Distance: dist,
		}),
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return classify("create collection", err)
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, points []vector.Point) error {
	pts := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pts[i] = &pb.PointStruct{
			Id:      pb.NewIDUUID(p.ID),
			Vectors: pb.NewVectorsDense(p.Vector),
			Payload: map[string]*pb.Value{
				payloadSource: pb.NewValueString(p.Payload.Source),
				payloadText:   pb.NewValueString(p.Payload.Text),
			},
		}
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points:         pts,
	})
	if err != nil {
		return classify("upsert", err)
	}
	return nil
}

func (r *Repository) Search(ctx context.Context, vec rag.Vector, topK int) ([]vector.Hit, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify("search", err)
	}

	hits := make([]vector.Hit, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		hits[i] = vector.Hit{
			ID:    pt.GetId().GetUuid(),
			Score: pt.GetScore(),
			Payload: rag.Payload{
				Source: pt.GetPayload()[payloadSource].GetStringValue(),
				Text:   pt.GetPayload()[payloadText].GetStringValue(),
			},
		}
	}
	return hits, nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	resp, err := r.points.Count(ctx, &pb.CountPoints{
		CollectionName: r.collection,
		Exact:          pb.PtrOf(true),
	})
	if err != nil {
		return 0, classify("count", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (r *Repository) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// classify maps transport failures to StoreUnavailableError and passes other
// errors through with context.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return &rag.StoreUnavailableError{Op: op, Err: err}
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition:
		return fmt.Errorf("qdrant %s: %w: %v", op, rag.ErrInvalidInput, err)
	}
	return fmt.Errorf("qdrant %s: %w", op, err)
}

func parseDistance(name string) (pb.Distance, error) {
	switch strings.ToLower(name) {
	case "", "cosine":
		return pb.Distance_Cosine, nil
	case "dot":
		return pb.Distance_Dot, nil
	case "euclid", "euclidean":
		return pb.Distance_Euclid, nil
	case "manhattan":
		return pb.Distance_Manhattan, nil
	}
	return 0, fmt.Errorf("unknown distance %q: %w", name, rag.ErrInvalidInput)
}
