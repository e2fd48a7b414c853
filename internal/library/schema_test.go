package library

import (
	"testing"

	"github.com/stretchr/testify/assert"

	libhttp "github.com/wesleyorama2/libload/internal/http"
)

const validBook = `{"id":"b1","name":"SeedBook0","authorId":["a1"],"createdAt":"2024-01-01T00:00:00Z"}`

func TestSchemas(t *testing.T) {
	tests := []struct {
		name   string
		schema *Schema
		body   string
		valid  bool
	}{
		{"register author", RegisterAuthorSchema, `{"id":"a1"}`, true},
		{"register author empty id", RegisterAuthorSchema, `{"id":""}`, false},
		{"register author error body", RegisterAuthorSchema, `{"code":13,"message":"boom"}`, false},
		{"author info", AuthorInfoSchema, `{"id":"a1","name":"Ann"}`, true},
		{"author info missing name", AuthorInfoSchema, `{"id":"a1"}`, false},
		{"book envelope", BookEnvelopeSchema, `{"book":` + validBook + `}`, true},
		{"book envelope wrong author type", BookEnvelopeSchema, `{"book":{"id":"b1","name":"x","authorId":"a1"}}`, false},
		{"book envelope not JSON", BookEnvelopeSchema, `<html>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate([]byte(tt.body))
			assert.Equal(t, tt.valid, err == nil, "err = %v", err)
		})
	}
}

func TestSchema_ValidationErrorsListViolations(t *testing.T) {
	err := AuthorInfoSchema.Validate([]byte(`{"id":5}`))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "validation error at")
	}
}

func TestSchema_ValidateStream(t *testing.T) {
	line := `{"result":` + validBook + `}`

	assert.NoError(t, AuthorBooksLineSchema.ValidateStream(nil), "an author without books streams nothing")
	assert.NoError(t, AuthorBooksLineSchema.ValidateStream([]byte(line+"\n"+line+"\n\n")))

	err := AuthorBooksLineSchema.ValidateStream([]byte(line + "\n" + `{"error":{"code":5}}` + "\n"))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "line 2")
	}
}

func TestSchema_Checks(t *testing.T) {
	check := RegisterAuthorSchema.Check()
	assert.Equal(t, "body matches register_author", check.Name)
	assert.True(t, check.Fn(&libhttp.Result{Body: []byte(`{"id":"a1"}`)}))
	assert.False(t, check.Fn(&libhttp.Result{}))

	stream := AuthorBooksLineSchema.StreamCheck()
	assert.Equal(t, "stream matches author_books", stream.Name)
	assert.True(t, stream.Fn(&libhttp.Result{}))
}

func TestMustCompileSchema_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustCompileSchema("broken", `{"type": 5}`)
	})
}
