package graph

import "time"

func (s *Store) Stats(ownerID string) (*Stats, error) {
	stats := &Stats{
		Labels:    make(map[string]int),
		Relations: make(map[string]int),
	}

	if err := s.db.QueryRow(queryCountNodes, ownerID).Scan(&stats.Nodes); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(queryCountEdges, ownerID).Scan(&stats.Edges); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(queryCountDocuments, ownerID).Scan(&stats.Documents); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(queryLabelCounts, ownerID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.Labels[label] = count
	}
	rows.Close()

	rows, err = s.db.Query(queryRelationCounts, ownerID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var relation string
		var count int
		if err := rows.Scan(&relation, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.Relations[relation] = count
	}
	rows.Close()

	return stats, nil
}

func (s *Store) Owners() ([]string, error) {
	rows, err := s.db.Query(queryOwners)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}

	return owners, rows.Err()
}

// OwnerSnapshot is the full export shape for one owner, current and
// superseded rows included.
type OwnerSnapshot struct {
	OwnerID    string      `json:"owner_id"`
	ExportedAt time.Time   `json:"exported_at"`
	Nodes      []*Node     `json:"nodes"`
	Edges      []*Edge     `json:"edges"`
	Documents  []*Document `json:"documents"`
}

func (s *Store) Snapshot(ownerID string) (*OwnerSnapshot, error) {
	snap := &OwnerSnapshot{OwnerID: ownerID, ExportedAt: time.Now().UTC()}

	rows, err := s.db.Query(`SELECT `+nodeColumns+` FROM nodes WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, err
	}
	snap.Nodes, err = scanNodes(rows)
	if err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`SELECT `+edgeColumns+` FROM edges WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, err
	}
	snap.Edges, err = scanEdges(rows)
	if err != nil {
		return nil, err
	}

	snap.Documents, err = s.Documents(ownerID)
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// EraseOwner removes every trace of an owner: nodes, property index, vector
// rows, edges, documents, and the ingest log, in one transaction.
func (s *Store) EraseOwner(ownerID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM node_props WHERE node_id IN (SELECT id FROM nodes WHERE owner_id = ?)`, ownerID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM vec_nodes WHERE node_id IN (SELECT id FROM nodes WHERE owner_id = ?)`, ownerID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM vec_documents WHERE document_id IN (SELECT id FROM documents WHERE owner_id = ?)`, ownerID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM edges WHERE owner_id = ?`, ownerID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM nodes WHERE owner_id = ?`, ownerID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM ingest_log WHERE owner_id = ?`, ownerID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE owner_id = ?`, ownerID); err != nil {
		return err
	}

	return tx.Commit()
}

// PruneSuperseded deletes retired nodes and closed edges whose valid_until
// fell outside the retention window. Returns rows removed.
func (s *Store) PruneSuperseded(ownerID string, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention).Format("2006-01-02 15:04:05")

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM edges WHERE owner_id = ? AND is_current = 0 AND valid_until < ?`, ownerID, cutoff)
	if err != nil {
		return 0, err
	}
	edgesPruned, _ := res.RowsAffected()

	// retired nodes may still be referenced by closed edges inside retention
	res, err = tx.Exec(`DELETE FROM nodes WHERE owner_id = ? AND is_current = 0 AND valid_until < ?
		AND id NOT IN (SELECT source_id FROM edges UNION SELECT target_id FROM edges)`, ownerID, cutoff)
	if err != nil {
		return 0, err
	}
	nodesPruned, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return int(edgesPruned + nodesPruned), nil
}
