// Package store holds the vector search backends. Each one forwards a query
// embedding to a managed service and returns the matching chunks; ranking
// happens on the service side.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/xhad/crossrag/internal/types"
)

var (
	ErrNoStats           = errors.New("no statistics available")
	ErrUnknownBackend    = errors.New("unknown vector backend")
	ErrInvalidFunction   = errors.New("invalid function name")
	ErrMissingCredential = errors.New("missing database credentials")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidFunction, name)
	}
	return nil
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend          string
	URL              string
	ServiceKey       string
	DatabaseURL      string
	SearchFunction   string
	StatsFunction    string
	QdrantAddress    string
	QdrantCollection string
	QdrantAPIKey     string
	QdrantTLS        bool
	Timeout          time.Duration
}

// Open builds the backend named in opts.
func Open(ctx context.Context, opts Options) (types.VectorStore, error) {
	var (
		vs  types.VectorStore
		err error
	)
	switch opts.Backend {
	case "postgrest":
		var s *PostgRESTStore
		s, err = NewPostgREST(PostgRESTConfig{
			URL:            opts.URL,
			ServiceKey:     opts.ServiceKey,
			SearchFunction: opts.SearchFunction,
			StatsFunction:  opts.StatsFunction,
			Timeout:        opts.Timeout,
		})
		vs = s
	case "postgres":
		var s *VectorStore
		s, err = NewWithConfig(ctx, VectorStoreConfig{
			ConnString:     opts.DatabaseURL,
			SearchFunction: opts.SearchFunction,
			StatsFunction:  opts.StatsFunction,
		})
		vs = s
	case "qdrant":
		var s *QdrantStore
		s, err = NewQdrant(QdrantConfig{
			Address:    opts.QdrantAddress,
			Collection: opts.QdrantCollection,
			APIKey:     opts.QdrantAPIKey,
			TLS:        opts.QdrantTLS,
		})
		vs = s
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return vs, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
