package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS dags (
    id         CHAR(32) PRIMARY KEY,
    name       VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS nodes (
    id         CHAR(32) PRIMARY KEY,
    dag_id     CHAR(32) NOT NULL REFERENCES dags(id) ON DELETE CASCADE,
    name       VARCHAR(255) NOT NULL DEFAULT '',
    data       JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS edges (
    id         CHAR(32) PRIMARY KEY,
    node_from  CHAR(32) NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    node_to    CHAR(32) NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_nodes_dag_id   ON nodes(dag_id);
CREATE INDEX IF NOT EXISTS idx_edges_node_from ON edges(node_from);
CREATE INDEX IF NOT EXISTS idx_edges_node_to   ON edges(node_to);
`

// CreateSchema creates the dags, nodes and edges tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the edges, nodes and dags tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS edges, nodes, dags CASCADE;`)
	return err
}
