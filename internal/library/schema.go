package library

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	libhttp "github.com/wesleyorama2/libload/internal/http"
	"github.com/wesleyorama2/libload/internal/performance"
)

// ValidationErrors represents a collection of schema violations.
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled JSON schema for one response shape.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// MustCompileSchema compiles src and panics if it is not a valid schema.
func MustCompileSchema(name, src string) *Schema {
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("invalid schema %s: %v", name, err))
	}
	return &Schema{name: name, schema: compiler.MustCompile(url)}
}

// Name returns the schema name.
func (s *Schema) Name() string {
	return s.name
}

// Validate checks a single JSON document.
func (s *Schema) Validate(body []byte) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := s.schema.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return extractValidationErrors(verr)
		}
		return err
	}
	return nil
}

// ValidateStream checks every non-empty line of a newline-delimited stream.
func (s *Schema) ValidateStream(body []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		if err := s.Validate(scanner.Bytes()); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}

// Check returns a check passing when the response body matches the schema.
func (s *Schema) Check() performance.Check {
	return performance.NewCheck("body matches "+s.name, func(r *libhttp.Result) bool {
		return s.Validate(r.Body) == nil
	})
}

// StreamCheck is Check for newline-delimited streams.
func (s *Schema) StreamCheck() performance.Check {
	return performance.NewCheck("stream matches "+s.name, func(r *libhttp.Result) bool {
		return s.ValidateStream(r.Body) == nil
	})
}

// extractValidationErrors flattens a jsonschema.ValidationError tree.
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var errors ValidationErrors

	if err.Message != "" {
		errors = append(errors, fmt.Errorf("validation error at %s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		errors = append(errors, extractValidationErrors(cause)...)
	}

	return errors
}

const bookSchema = `{
	"type": "object",
	"required": ["id", "name", "authorId"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string"},
		"authorId": {"type": "array", "items": {"type": "string"}},
		"createdAt": {"type": "string"},
		"updatedAt": {"type": "string"}
	}
}`

// Response shapes of the library service.
var (
	RegisterAuthorSchema = MustCompileSchema("register_author", `{
		"type": "object",
		"required": ["id"],
		"properties": {"id": {"type": "string", "minLength": 1}}
	}`)

	AuthorInfoSchema = MustCompileSchema("author_info", `{
		"type": "object",
		"required": ["id", "name"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"name": {"type": "string"}
		}
	}`)

	BookEnvelopeSchema = MustCompileSchema("book", `{
		"type": "object",
		"required": ["book"],
		"properties": {"book": `+bookSchema+`}
	}`)

	AuthorBooksLineSchema = MustCompileSchema("author_books", `{
		"type": "object",
		"required": ["result"],
		"properties": {"result": `+bookSchema+`}
	}`)
)
