package graph

import (
	"context"
	"database/sql"
	"time"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Store struct {
	db         *sql.DB
	embedder   Embedder
	dimensions int
}

// Node is one entity in the property graph. Properties holds the canonical
// JSON blob decoded; node_props carries the same pairs flattened for lookup.
type Node struct {
	ID            int64
	OwnerID       string
	Label         string
	Name          string
	CanonicalName string
	Properties    map[string]string
	Confidence    float64
	SourceText    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ValidFrom     time.Time
	ValidUntil    *time.Time
	IsCurrent     bool
}

type Edge struct {
	ID         int64
	OwnerID    string
	SourceID   int64
	TargetID   int64
	Relation   string
	Properties map[string]string
	Confidence float64
	CreatedAt  time.Time
	ValidFrom  time.Time
	ValidUntil *time.Time
	IsCurrent  bool
}

type Document struct {
	ID        int64
	OwnerID   string
	Text      string
	Metadata  map[string]string
	CreatedAt time.Time
}

type Stats struct {
	Nodes     int
	Edges     int
	Documents int
	Labels    map[string]int
	Relations map[string]int
}
