package graph

import "database/sql"

func scanEdge(row rowScanner) (*Edge, error) {
	var e Edge
	var props string
	var validUntil sql.NullTime

	err := row.Scan(&e.ID, &e.OwnerID, &e.SourceID, &e.TargetID, &e.Relation,
		&props, &e.Confidence, &e.CreatedAt, &e.ValidFrom, &validUntil, &e.IsCurrent)
	if err != nil {
		return nil, err
	}

	e.Properties = unmarshalProps(props)
	if validUntil.Valid {
		t := validUntil.Time
		e.ValidUntil = &t
	}

	return &e, nil
}

func scanEdges(rows *sql.Rows) ([]*Edge, error) {
	defer rows.Close()
	var edges []*Edge

	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}

	return edges, rows.Err()
}

func (s *Store) GetEdge(id int64) (*Edge, error) {
	return scanEdge(s.db.QueryRow(queryGetEdge, id))
}

func (s *Store) GetEdgesFrom(nodeID int64) ([]*Edge, error) {
	rows, err := s.db.Query(queryGetEdgesFrom, nodeID)
	if err != nil {
		return nil, err
	}

	return scanEdges(rows)
}

func (s *Store) GetEdgesTo(nodeID int64) ([]*Edge, error) {
	rows, err := s.db.Query(queryGetEdgesTo, nodeID)
	if err != nil {
		return nil, err
	}

	return scanEdges(rows)
}

// GetEdgesAt returns the current edges touching a node in either direction.
func (s *Store) GetEdgesAt(nodeID int64) ([]*Edge, error) {
	rows, err := s.db.Query(queryGetEdgesAt, nodeID, nodeID)
	if err != nil {
		return nil, err
	}

	return scanEdges(rows)
}

func (s *Store) CurrentEdges(ownerID string) ([]*Edge, error) {
	rows, err := s.db.Query(queryGetCurrentEdges, ownerID)
	if err != nil {
		return nil, err
	}

	return scanEdges(rows)
}
