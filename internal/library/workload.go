// Package library is the load-test workload for the library service: the
// setup stage that seeds authors and books, the iteration bodies that
// exercise each endpoint, and the built-in load profile.
package library

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	libhttp "github.com/wesleyorama2/libload/internal/http"
	"github.com/wesleyorama2/libload/internal/performance"
)

// Setup context keys.
const (
	KeyAuthors = "authors"
	KeyBooks   = "books"
)

const (
	pathAuthor      = "/v1/library/author"
	pathBook        = "/v1/library/book"
	pathAuthorBooks = "/v1/library/author_books"
)

// ErrNoSeedData is returned by an iteration that needs seeded ids when the
// setup stage produced none.
var ErrNoSeedData = errors.New("no seeded data")

var statusOK = performance.StatusIn(http.StatusOK, http.StatusCreated)

type authorBody struct {
	Name string `json:"name"`
}

type bookBody struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	AuthorIDs []string `json:"author_id"`
}

// Execs returns the iteration bodies keyed by exec name. Each body is
// registered under its camelCase name and under its scenario name.
func Execs() map[string]performance.IterationFunc {
	bodies := map[string]performance.IterationFunc{
		"registerAuthor": RegisterAuthor,
		"addBook":        AddBook,
		"updateBook":     UpdateBook,
		"getBookInfo":    GetBookInfo,
		"getAuthorInfo":  GetAuthorInfo,
		"getAuthorBooks": GetAuthorBooks,
	}
	execs := make(map[string]performance.IterationFunc, 2*len(bodies))
	for name, fn := range bodies {
		execs[name] = fn
		execs[snakeCase(name)] = fn
	}
	return execs
}

// RegisterAuthor creates an author with a unique name.
func RegisterAuthor(ctx context.Context, it *performance.Iteration) error {
	req, err := libhttp.NewRequest(http.MethodPost, pathAuthor).
		WithName("register_author").
		WithJSON(authorBody{Name: uniqueName("Author")})
	if err != nil {
		return err
	}
	_, err = it.Do(ctx, req, statusOK, RegisterAuthorSchema.Check())
	return err
}

// AddBook creates a book owned by a random seeded author.
func AddBook(ctx context.Context, it *performance.Iteration) error {
	authorID, err := pick(it, KeyAuthors)
	if err != nil {
		return err
	}

	req, err := libhttp.NewRequest(http.MethodPost, pathBook).
		WithName("add_book").
		WithJSON(bookBody{Name: uniqueName("Book"), AuthorIDs: []string{authorID}})
	if err != nil {
		return err
	}
	_, err = it.Do(ctx, req, statusOK, BookEnvelopeSchema.Check())
	return err
}

// UpdateBook renames a random seeded book and reassigns it to a random
// seeded author.
func UpdateBook(ctx context.Context, it *performance.Iteration) error {
	bookID, err := pick(it, KeyBooks)
	if err != nil {
		return err
	}
	authorID, err := pick(it, KeyAuthors)
	if err != nil {
		return err
	}

	req, err := libhttp.NewRequest(http.MethodPut, pathBook).
		WithName("update_book").
		WithJSON(bookBody{ID: bookID, Name: uniqueName("Updated"), AuthorIDs: []string{authorID}})
	if err != nil {
		return err
	}
	_, err = it.Do(ctx, req, statusOK)
	return err
}

// GetBookInfo reads a random seeded book.
func GetBookInfo(ctx context.Context, it *performance.Iteration) error {
	bookID, err := pick(it, KeyBooks)
	if err != nil {
		return err
	}
	req := libhttp.NewRequest(http.MethodGet, pathBook+"/"+bookID).WithName("get_book_info")
	_, err = it.Do(ctx, req, statusOK, BookEnvelopeSchema.Check())
	return err
}

// GetAuthorInfo reads a random seeded author.
func GetAuthorInfo(ctx context.Context, it *performance.Iteration) error {
	authorID, err := pick(it, KeyAuthors)
	if err != nil {
		return err
	}
	req := libhttp.NewRequest(http.MethodGet, pathAuthor+"/"+authorID).WithName("get_author_info")
	_, err = it.Do(ctx, req, statusOK, AuthorInfoSchema.Check())
	return err
}

// GetAuthorBooks streams the books of a random seeded author.
func GetAuthorBooks(ctx context.Context, it *performance.Iteration) error {
	authorID, err := pick(it, KeyAuthors)
	if err != nil {
		return err
	}
	req := libhttp.NewRequest(http.MethodGet, pathAuthorBooks+"/"+authorID).WithName("get_author_books")
	_, err = it.Do(ctx, req, statusOK, AuthorBooksLineSchema.StreamCheck())
	return err
}

func pick(it *performance.Iteration, key string) (string, error) {
	v, ok := it.Setup.Pick(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSeedData, key)
	}
	return v, nil
}

// uniqueName returns prefix followed by 32 hex digits.
func uniqueName(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// snakeCase turns "getAuthorBooks" into "get_author_books".
func snakeCase(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
