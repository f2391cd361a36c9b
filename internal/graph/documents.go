package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/bowerhall/graphmem/internal/logger"
)

func scanDocument(row rowScanner) (*Document, error) {
	var d Document
	var meta string

	err := row.Scan(&d.ID, &d.OwnerID, &d.Text, &meta, &d.CreatedAt)
	if err != nil {
		return nil, err
	}

	d.Metadata = unmarshalProps(meta)
	return &d, nil
}

// AddDocument stores the raw source text and, when an embedder is configured,
// indexes its embedding. Embedding failure does not fail the insert.
func (s *Store) AddDocument(ctx context.Context, ownerID, text string, metadata map[string]string) (*Document, error) {
	result, err := s.db.Exec(queryInsertDocument, ownerID, text, marshalProps(metadata))
	if err != nil {
		return nil, err
	}

	id, _ := result.LastInsertId()
	doc := &Document{ID: id, OwnerID: ownerID, Text: text, Metadata: metadata}

	if s.embedder != nil {
		if err := s.EmbedDocument(ctx, id, text); err != nil {
			logger.Get().Warn("document embedding failed, stored without vector",
				zap.Int64("document_id", id), zap.Error(err))
		}
	}

	return doc, nil
}

func (s *Store) GetDocument(id int64) (*Document, error) {
	return scanDocument(s.db.QueryRow(queryGetDocument, id))
}

func (s *Store) Documents(ownerID string) ([]*Document, error) {
	rows, err := s.db.Query(queryGetDocuments, ownerID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()
	var docs []*Document

	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}

	return docs, rows.Err()
}

func (s *Store) DeleteDocument(id int64) error {
	if _, err := s.db.Exec(queryDeleteVecDocument, id); err != nil {
		return err
	}

	_, err := s.db.Exec(queryDeleteDocument, id)
	return err
}

func (s *Store) RecordIngest(opID, ownerID string, documentID int64, nodesAdded, edgesAdded, mergesApplied int) error {
	var docID any
	if documentID > 0 {
		docID = documentID
	}

	_, err := s.db.Exec(queryInsertIngestLog, opID, ownerID, docID, nodesAdded, edgesAdded, mergesApplied)
	return err
}
