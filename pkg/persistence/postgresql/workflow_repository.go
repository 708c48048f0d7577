package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
)

// WorkflowRepository reads workflow definitions. Writes go through the authoring
// surface, never through the engine, so this repository is read-only.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , tenant_id
		  , name
		  , active
		  , entry_node_id
		  , timezone
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("get", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadGraph(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) ActiveByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , tenant_id
		  , name
		  , active
		  , entry_node_id
		  , timezone
		  , created_at
		  , updated_at
		FROM workflows
		WHERE tenant_id = $1 AND active = true
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadGraph(ctx, workflow); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var workflow models.Workflow

	err := row.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.Name,
		&workflow.Active,
		&workflow.EntryNodeID,
		&workflow.Timezone,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

// loadGraph fills nodes and edges in stored position order.
func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	nodes, err := r.loadNodes(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to load workflow nodes: %w", err)
	}

	edges, err := r.loadEdges(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to load workflow edges: %w", err)
	}

	workflow.Nodes = nodes
	workflow.Edges = edges

	return nil
}

func (r *WorkflowRepository) loadNodes(ctx context.Context, workflowID string) ([]*models.Node, error) {
	query := `
		SELECT id, node_type, config
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY position, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	nodes := make([]*models.Node, 0)

	for rows.Next() {
		var (
			node      models.Node
			rawConfig []byte
		)

		if err := rows.Scan(&node.ID, &node.Type, &rawConfig); err != nil {
			return nil, err
		}

		if len(rawConfig) > 0 {
			if err := json.Unmarshal(rawConfig, &node.Config); err != nil {
				return nil, fmt.Errorf("node %s has invalid config json: %w", node.ID, err)
			}
		}

		nodes = append(nodes, &node)
	}

	return nodes, rows.Err()
}

func (r *WorkflowRepository) loadEdges(ctx context.Context, workflowID string) ([]*models.Edge, error) {
	query := `
		SELECT id, source_node_id, target_node_id, source_handle
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY position, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	edges := make([]*models.Edge, 0)

	for rows.Next() {
		var edge models.Edge

		if err := rows.Scan(&edge.ID, &edge.Source, &edge.Target, &edge.SourceHandle); err != nil {
			return nil, err
		}

		edges = append(edges, &edge)
	}

	return edges, rows.Err()
}
