package library

import (
	"testing"
)

func TestExtract(t *testing.T) {
	body := []byte(`{"id":"a1","book":{"id":"b1","authorId":["x","y"],"note":null,"empty":""}}`)

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"$.id", "a1", false},
		{"id", "a1", false},
		{"$.book.id", "b1", false},
		{"book.id", "b1", false},
		{"$['book']['id']", "b1", false},
		{"$.book.authorId[1]", "y", false},
		{"$.book.missing", "", true},
		{"$.book.note", "", true},
		{"$.book.empty", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Extract(body, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Extract(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Extract(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestExtract_InvalidBody(t *testing.T) {
	if _, err := Extract(nil, "$.id"); err == nil {
		t.Error("expected error for empty body")
	}
	if _, err := Extract([]byte(`{"id":`), "$.id"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
