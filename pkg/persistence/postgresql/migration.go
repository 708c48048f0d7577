package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT false,
				entry_node_id VARCHAR(255) NOT NULL DEFAULT '',
				timezone VARCHAR(64) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_workflows_tenant_active ON workflows(tenant_id, active);

			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				node_type VARCHAR(64) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				position INT NOT NULL DEFAULT 0,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_nodes_workflow_id ON workflow_nodes(workflow_id);

			CREATE TABLE workflow_edges (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				source_handle VARCHAR(255) NOT NULL DEFAULT '',
				position INT NOT NULL DEFAULT 0,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_edges_workflow_id ON workflow_edges(workflow_id);
			CREATE INDEX idx_workflow_edges_source ON workflow_edges(workflow_id, source_node_id);
		`,
		2: `
			CREATE TABLE conversation_states (
				workflow_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255) NOT NULL,
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				context JSONB NOT NULL DEFAULT '{}',
				last_message_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_message_date VARCHAR(10) NOT NULL DEFAULT '',
				PRIMARY KEY (workflow_id, contact_id)
			);

			-- The uniqueness constraint is the idempotence mechanism for the daily
			-- trigger; insertion conflict means "already seen today".
			CREATE TABLE daily_triggers (
				contact_id VARCHAR(255) NOT NULL,
				local_date VARCHAR(10) NOT NULL,
				first_timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (contact_id, local_date)
			);

			CREATE INDEX idx_daily_triggers_local_date ON daily_triggers(local_date);

			CREATE TABLE execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255) NOT NULL,
				event_type VARCHAR(32) NOT NULL,
				trigger_payload JSONB,
				responses_sent JSONB,
				status VARCHAR(16) NOT NULL,
				error_message TEXT,
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_logs_workflow_id ON execution_logs(workflow_id);
			CREATE INDEX idx_execution_logs_executed_at ON execution_logs(executed_at);
		`,
		3: `
			CREATE TABLE contact_subscriptions (
				contact_id VARCHAR(255) PRIMARY KEY,
				opted_out BOOLEAN NOT NULL DEFAULT false,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE engine_config (
				key VARCHAR(255) PRIMARY KEY,
				value JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			INSERT INTO engine_config (key, value) VALUES
				('allowed_domains', '[]'),
				('subscribe_keywords', '["start", "subscribe"]'),
				('unsubscribe_keywords', '["stop", "unsubscribe"]');
		`,
	}
}
