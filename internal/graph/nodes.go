package graph

import (
	"database/sql"
	"encoding/json"
	"strings"
)

// Canonicalize produces the case-insensitive lookup key for an entity name.
func Canonicalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func marshalProps(props map[string]string) string {
	if len(props) == 0 {
		return "{}"
	}

	data, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}

	return string(data)
}

func unmarshalProps(data string) map[string]string {
	props := make(map[string]string)
	if data == "" {
		return props
	}

	_ = json.Unmarshal([]byte(data), &props)
	return props
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var n Node
	var props string
	var validUntil sql.NullTime

	err := row.Scan(&n.ID, &n.OwnerID, &n.Label, &n.Name, &n.CanonicalName, &props,
		&n.Confidence, &n.SourceText, &n.CreatedAt, &n.UpdatedAt, &n.ValidFrom,
		&validUntil, &n.IsCurrent)
	if err != nil {
		return nil, err
	}

	n.Properties = unmarshalProps(props)
	if validUntil.Valid {
		t := validUntil.Time
		n.ValidUntil = &t
	}

	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*Node, error) {
	defer rows.Close()
	var nodes []*Node

	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	return nodes, rows.Err()
}

func (s *Store) GetNode(id int64) (*Node, error) {
	return scanNode(s.db.QueryRow(queryGetNode, id))
}

// FindNodeByCanonicalName returns the current node with the given canonical
// name, or nil when none exists. Names are not unique keys; when several
// current nodes share a canonical name (same name, different label) the one
// with the matching label wins, otherwise the first.
func (s *Store) FindNodeByCanonicalName(ownerID, name, label string) (*Node, error) {
	rows, err := s.db.Query(queryGetNodeByCanonical, ownerID, Canonicalize(name))
	if err != nil {
		return nil, err
	}

	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}

	for _, n := range nodes {
		if label == "" || n.Label == label {
			return n, nil
		}
	}

	return nil, nil
}

func (s *Store) FindNodesByLabel(ownerID, label string) ([]*Node, error) {
	rows, err := s.db.Query(queryGetNodesByLabel, ownerID, label)
	if err != nil {
		return nil, err
	}

	return scanNodes(rows)
}

// FindNodesByProperty looks nodes up through the flattened property index.
func (s *Store) FindNodesByProperty(ownerID, key, value string) ([]*Node, error) {
	rows, err := s.db.Query(queryGetNodesByProperty, key, value, ownerID)
	if err != nil {
		return nil, err
	}

	return scanNodes(rows)
}

func (s *Store) CurrentNodes(ownerID string) ([]*Node, error) {
	rows, err := s.db.Query(queryGetCurrentNodes, ownerID)
	if err != nil {
		return nil, err
	}

	return scanNodes(rows)
}

func syncNodeProps(tx *sql.Tx, nodeID int64, props map[string]string) error {
	if _, err := tx.Exec(queryDeleteNodeProps, nodeID); err != nil {
		return err
	}

	for key, value := range props {
		if _, err := tx.Exec(queryInsertNodeProp, nodeID, key, value); err != nil {
			return err
		}
	}

	return nil
}
