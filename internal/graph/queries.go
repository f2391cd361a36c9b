package graph

const (
	nodeColumns = `id, owner_id, label, name, canonical_name, properties, confidence, source_text, created_at, updated_at, valid_from, valid_until, is_current`
	edgeColumns = `id, owner_id, source_id, target_id, relation, properties, confidence, created_at, valid_from, valid_until, is_current`

	queryInsertNode          = `INSERT INTO nodes (owner_id, label, name, canonical_name, properties, confidence, source_text) VALUES (?, ?, ?, ?, ?, ?, ?)`
	queryGetNode             = `SELECT ` + nodeColumns + ` FROM nodes WHERE id = ?`
	queryGetNodeByCanonical  = `SELECT ` + nodeColumns + ` FROM nodes WHERE owner_id = ? AND canonical_name = ? AND is_current = 1`
	queryGetNodesByLabel     = `SELECT ` + nodeColumns + ` FROM nodes WHERE owner_id = ? AND label = ? AND is_current = 1`
	queryGetCurrentNodes     = `SELECT ` + nodeColumns + ` FROM nodes WHERE owner_id = ? AND is_current = 1`
	queryGetNodesByProperty  = `SELECT ` + nodeColumns + ` FROM nodes WHERE id IN (SELECT node_id FROM node_props WHERE key = ? AND value = ?) AND owner_id = ? AND is_current = 1`
	queryUpdateNodeProps     = `UPDATE nodes SET properties = ?, confidence = ?, source_text = ?, updated_at = datetime('now') WHERE id = ?`
	queryRetireNode          = `UPDATE nodes SET is_current = 0, valid_until = datetime('now'), updated_at = datetime('now') WHERE id = ?`
	queryRaiseNodeConfidence = `UPDATE nodes SET confidence = MAX(confidence, ?), updated_at = datetime('now') WHERE id = ?`

	queryDeleteNodeProps = `DELETE FROM node_props WHERE node_id = ?`
	queryInsertNodeProp  = `INSERT INTO node_props (node_id, key, value) VALUES (?, ?, ?)`

	queryInsertEdge          = `INSERT INTO edges (owner_id, source_id, target_id, relation, properties, confidence) VALUES (?, ?, ?, ?, ?, ?)`
	queryGetEdge             = `SELECT ` + edgeColumns + ` FROM edges WHERE id = ?`
	queryGetEdgesFrom        = `SELECT ` + edgeColumns + ` FROM edges WHERE source_id = ? AND is_current = 1`
	queryGetEdgesTo          = `SELECT ` + edgeColumns + ` FROM edges WHERE target_id = ? AND is_current = 1`
	queryGetEdgesAt          = `SELECT ` + edgeColumns + ` FROM edges WHERE (source_id = ? OR target_id = ?) AND is_current = 1`
	queryGetCurrentEdges     = `SELECT ` + edgeColumns + ` FROM edges WHERE owner_id = ? AND is_current = 1`
	queryGetEdgeBetweenID    = `SELECT id FROM edges WHERE source_id = ? AND target_id = ? AND relation = ? AND is_current = 1 LIMIT 1`
	queryCloseEdge           = `UPDATE edges SET is_current = 0, valid_until = datetime('now') WHERE id = ?`
	queryRaiseEdgeConfidence = `UPDATE edges SET confidence = MAX(confidence, ?) WHERE id = ?`
	queryRemapEdgeSources    = `UPDATE edges SET source_id = ? WHERE source_id = ?`
	queryRemapEdgeTargets    = `UPDATE edges SET target_id = ? WHERE target_id = ?`
	queryCountNodeOwner      = `SELECT owner_id, is_current FROM nodes WHERE id = ?`

	queryInsertDocument = `INSERT INTO documents (owner_id, text, metadata) VALUES (?, ?, ?)`
	queryGetDocument    = `SELECT id, owner_id, text, metadata, created_at FROM documents WHERE id = ?`
	queryGetDocuments   = `SELECT id, owner_id, text, metadata, created_at FROM documents WHERE owner_id = ? ORDER BY id`
	queryDeleteDocument = `DELETE FROM documents WHERE id = ?`

	queryInsertVecNode     = `INSERT OR REPLACE INTO vec_nodes (node_id, embedding) VALUES (?, ?)`
	queryDeleteVecNode     = `DELETE FROM vec_nodes WHERE node_id = ?`
	queryInsertVecDocument = `INSERT OR REPLACE INTO vec_documents (document_id, embedding) VALUES (?, ?)`
	queryDeleteVecDocument = `DELETE FROM vec_documents WHERE document_id = ?`

	queryInsertIngestLog = `INSERT INTO ingest_log (op_id, owner_id, document_id, nodes_added, edges_added, merges_applied) VALUES (?, ?, ?, ?, ?, ?)`

	queryOwners = `SELECT DISTINCT owner_id FROM nodes UNION SELECT DISTINCT owner_id FROM documents`

	queryCountNodes     = `SELECT COUNT(*) FROM nodes WHERE owner_id = ? AND is_current = 1`
	queryCountEdges     = `SELECT COUNT(*) FROM edges WHERE owner_id = ? AND is_current = 1`
	queryCountDocuments = `SELECT COUNT(*) FROM documents WHERE owner_id = ?`
	queryLabelCounts    = `SELECT label, COUNT(*) FROM nodes WHERE owner_id = ? AND is_current = 1 GROUP BY label`
	queryRelationCounts = `SELECT relation, COUNT(*) FROM edges WHERE owner_id = ? AND is_current = 1 GROUP BY relation`
)
