package graph

import (
	"context"
	"database/sql"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
)

// normalizeEmbedding scales the vector to unit length. With unit vectors the
// vec0 L2 distance d relates to cosine similarity as sim = 1 - d*d/2.
func normalizeEmbedding(embedding []float32) []float32 {
	var sum float64
	for _, v := range embedding {
		sum += float64(v) * float64(v)
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return embedding
	}

	out := make([]float32, len(embedding))
	for i, v := range embedding {
		out[i] = float32(float64(v) / norm)
	}

	return out
}

func distanceToSimilarity(distance float32) float64 {
	return 1 - float64(distance)*float64(distance)/2
}

func serializeEmbedding(embedding []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(normalizeEmbedding(embedding))
}

func (s *Store) EmbedNode(ctx context.Context, nodeID int64, text string) error {
	if s.embedder == nil {
		return nil
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(queryInsertVecNode, nodeID, blob)
	return err
}

func (s *Store) EmbedDocument(ctx context.Context, documentID int64, text string) error {
	if s.embedder == nil {
		return nil
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(queryInsertVecDocument, documentID, blob)
	return err
}

type ScoredNode struct {
	Node       *Node
	Similarity float64
}

type ScoredDocument struct {
	Document   *Document
	Similarity float64
}

// SimilarNodes runs a KNN scan over the owner's current node embeddings.
func (s *Store) SimilarNodes(ctx context.Context, ownerID string, embedding []float32, limit int) ([]*ScoredNode, error) {
	if s.embedder == nil {
		return nil, nil
	}

	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return nil, err
	}

	q := `
		SELECT n.id, n.owner_id, n.label, n.name, n.canonical_name, n.properties,
		       n.confidence, n.source_text, n.created_at, n.updated_at,
		       n.valid_from, n.valid_until, n.is_current, v.distance
		FROM vec_nodes v
		JOIN nodes n ON v.node_id = n.id
		WHERE v.embedding MATCH ?
		  AND k = ?
		  AND n.owner_id = ?
		  AND n.is_current = 1
		ORDER BY v.distance
	`

	rows, err := s.db.QueryContext(ctx, q, blob, limit, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*ScoredNode
	for rows.Next() {
		var n Node
		var props string
		var validUntil sql.NullTime
		var distance float32
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Label, &n.Name, &n.CanonicalName, &props,
			&n.Confidence, &n.SourceText, &n.CreatedAt, &n.UpdatedAt, &n.ValidFrom,
			&validUntil, &n.IsCurrent, &distance); err != nil {
			return nil, err
		}
		n.Properties = unmarshalProps(props)
		if validUntil.Valid {
			t := validUntil.Time
			n.ValidUntil = &t
		}
		results = append(results, &ScoredNode{Node: &n, Similarity: distanceToSimilarity(distance)})
	}

	return results, rows.Err()
}

// SimilarDocuments embeds the query and runs a KNN scan over the owner's
// document embeddings.
func (s *Store) SimilarDocuments(ctx context.Context, ownerID, query string, limit int) ([]*ScoredDocument, error) {
	if s.embedder == nil {
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return nil, err
	}

	q := `
		SELECT d.id, d.owner_id, d.text, d.metadata, d.created_at, v.distance
		FROM vec_documents v
		JOIN documents d ON v.document_id = d.id
		WHERE v.embedding MATCH ?
		  AND k = ?
		  AND d.owner_id = ?
		ORDER BY v.distance
	`

	rows, err := s.db.QueryContext(ctx, q, blob, limit, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*ScoredDocument
	for rows.Next() {
		var d Document
		var meta string
		var distance float32
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Text, &meta, &d.CreatedAt, &distance); err != nil {
			return nil, err
		}
		d.Metadata = unmarshalProps(meta)
		results = append(results, &ScoredDocument{Document: &d, Similarity: distanceToSimilarity(distance)})
	}

	return results, rows.Err()
}
