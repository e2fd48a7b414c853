package library

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libhttp "github.com/wesleyorama2/libload/internal/http"
	"github.com/wesleyorama2/libload/internal/performance"
)

// SetupOptions configure the seeding stage.
type SetupOptions struct {
	// Authors is the number of authors to create. One book is created per author.
	Authors int

	// Concurrency is the number of seeding requests in flight (default: 1).
	Concurrency int

	Logger *zap.Logger
}

// Setup returns the setup stage: it registers opts.Authors authors, then one
// book per author, and publishes their ids under KeyAuthors and KeyBooks.
// Any failed request fails the whole stage.
func Setup(opts SetupOptions) performance.SetupFunc {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return func(ctx context.Context, client performance.Requester) (*performance.SetupContext, error) {
		start := time.Now()

		authorIDs := make([]string, opts.Authors)
		err := seed(ctx, opts.Concurrency, opts.Authors, func(ctx context.Context, i int) error {
			id, err := create(ctx, client,
				libhttp.NewRequest(http.MethodPost, pathAuthor).WithName("setup_register_author"),
				authorBody{Name: fmt.Sprintf("SeedAuthor%d", i)},
				"$.id")
			if err != nil {
				return fmt.Errorf("seed author %d: %w", i, err)
			}
			authorIDs[i] = id
			return nil
		})
		if err != nil {
			return nil, err
		}
		opts.Logger.Debug("seeded authors", zap.Int("count", len(authorIDs)), zap.Duration("took", time.Since(start)))

		bookIDs := make([]string, len(authorIDs))
		err = seed(ctx, opts.Concurrency, len(authorIDs), func(ctx context.Context, i int) error {
			id, err := create(ctx, client,
				libhttp.NewRequest(http.MethodPost, pathBook).WithName("setup_add_book"),
				bookBody{Name: fmt.Sprintf("SeedBook%d", i), AuthorIDs: []string{authorIDs[i]}},
				"$.book.id")
			if err != nil {
				return fmt.Errorf("seed book %d: %w", i, err)
			}
			bookIDs[i] = id
			return nil
		})
		if err != nil {
			return nil, err
		}
		opts.Logger.Debug("seeded books", zap.Int("count", len(bookIDs)), zap.Duration("took", time.Since(start)))

		return performance.NewSetupContext(map[string][]string{
			KeyAuthors: authorIDs,
			KeyBooks:   bookIDs,
		}), nil
	}
}

// seed runs fn for 0..n-1 with at most limit calls in flight and stops at
// the first error.
func seed(ctx context.Context, limit, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// create sends body and extracts the id of the created entity at idPath.
func create(ctx context.Context, client performance.Requester, req *libhttp.Request, body interface{}, idPath string) (string, error) {
	req, err := req.WithJSON(body)
	if err != nil {
		return "", err
	}

	res, err := client.Execute(ctx, req)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", fmt.Errorf("unexpected status %d: %s", res.StatusCode, truncate(res.Body, 200))
	}

	id, err := Extract(res.Body, idPath)
	if err != nil {
		return "", fmt.Errorf("read id: %w", err)
	}
	return id, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
