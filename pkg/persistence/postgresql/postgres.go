// Package postgresql implements the persistence layer on PostgreSQL. All engine-facing
// stores except sent-message ownership records live here; those are Redis-backed
// because of their TTL semantics.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver
	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
	"github.com/omnipro-bh/omniflow/pkg/persistence/sqlbase"
)

// Persistence aggregates the PostgreSQL-backed repositories behind the engine's
// persistence interface.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
	stateRepo    *StateRepository
	triggerRepo  *TriggerRepository
	logRepo      *ExecutionLogRepository
	configRepo   *ConfigRepository
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence connects, runs pending migrations and wires the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger),
		stateRepo:    NewStateRepository(database),
		triggerRepo:  NewTriggerRepository(database),
		logRepo:      NewExecutionLogRepository(database),
		configRepo:   NewConfigRepository(database),
	}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

func (p *Persistence) ActiveWorkflowsByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	return p.workflowRepo.ActiveByTenant(ctx, tenantID)
}

func (p *Persistence) ConversationState(ctx context.Context, workflowID, contactID string) (*models.ConversationState, error) {
	return p.stateRepo.Get(ctx, workflowID, contactID)
}

func (p *Persistence) SaveConversationState(ctx context.Context, state *models.ConversationState) error {
	return p.stateRepo.Save(ctx, state)
}

func (p *Persistence) InsertDailyTrigger(ctx context.Context, flag *models.DailyTriggerFlag) error {
	return p.triggerRepo.Insert(ctx, flag)
}

func (p *Persistence) PruneDailyTriggers(ctx context.Context, cutoffDate string) (int64, error) {
	return p.triggerRepo.Prune(ctx, cutoffDate)
}

func (p *Persistence) AppendExecutionLog(ctx context.Context, entry *models.ExecutionLog) error {
	return p.logRepo.Append(ctx, entry)
}

func (p *Persistence) UpsertSubscription(ctx context.Context, sub *models.ContactSubscription) error {
	return p.configRepo.UpsertSubscription(ctx, sub)
}

func (p *Persistence) AllowedDomains(ctx context.Context) ([]string, error) {
	return p.configRepo.StringList(ctx, "allowed_domains")
}

func (p *Persistence) SubscribeKeywords(ctx context.Context) ([]string, error) {
	return p.configRepo.StringList(ctx, "subscribe_keywords")
}

func (p *Persistence) UnsubscribeKeywords(ctx context.Context) ([]string, error) {
	return p.configRepo.StringList(ctx, "unsubscribe_keywords")
}
