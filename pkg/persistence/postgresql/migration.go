package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				workspace_id VARCHAR(255),
				name VARCHAR(255) NOT NULL,
				is_deployed BOOLEAN NOT NULL DEFAULT false,
				deployed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_workflows_user_id ON workflows(user_id);

			CREATE TABLE webhooks (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				block_id VARCHAR(255),
				path VARCHAR(512) NOT NULL,
				provider VARCHAR(64) NOT NULL DEFAULT 'generic',
				provider_config JSONB NOT NULL DEFAULT '{}',
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_webhooks_path ON webhooks(path);
			CREATE UNIQUE INDEX idx_webhooks_active_path ON webhooks(path) WHERE is_active;
			CREATE INDEX idx_webhooks_workflow_id ON webhooks(workflow_id);
		`,
		2: `
			CREATE TABLE outbound_webhooks (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				url TEXT NOT NULL,
				secret TEXT,
				include_final_output BOOLEAN NOT NULL DEFAULT false,
				include_trace_spans BOOLEAN NOT NULL DEFAULT false,
				include_rate_limits BOOLEAN NOT NULL DEFAULT false,
				include_usage_data BOOLEAN NOT NULL DEFAULT false,
				level_filter TEXT[] NOT NULL,
				trigger_filter TEXT[] NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				CONSTRAINT outbound_webhooks_filters_not_empty CHECK (
					cardinality(level_filter) > 0 AND cardinality(trigger_filter) > 0
				)
			);

			CREATE UNIQUE INDEX idx_outbound_webhooks_workflow_url ON outbound_webhooks(workflow_id, url);

			CREATE TABLE outbound_webhook_deliveries (
				id VARCHAR(255) PRIMARY KEY,
				config_id VARCHAR(255) NOT NULL REFERENCES outbound_webhooks(id) ON DELETE CASCADE,
				workflow_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255) NOT NULL,
				attempts INTEGER NOT NULL,
				status_code INTEGER NOT NULL DEFAULT 0,
				success BOOLEAN NOT NULL,
				error TEXT,
				delivered_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_outbound_deliveries_config ON outbound_webhook_deliveries(config_id, delivered_at DESC);
			CREATE INDEX idx_outbound_deliveries_delivered_at ON outbound_webhook_deliveries(delivered_at);
		`,
		3: `
			CREATE TABLE subscriptions (
				id VARCHAR(255) PRIMARY KEY,
				reference_id VARCHAR(255) NOT NULL,
				plan VARCHAR(32) NOT NULL,
				status VARCHAR(32) NOT NULL,
				period_start TIMESTAMP WITH TIME ZONE,
				period_end TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_subscriptions_reference_id ON subscriptions(reference_id);

			CREATE TABLE user_stats (
				user_id VARCHAR(255) PRIMARY KEY,
				current_period_cost NUMERIC(12, 4) NOT NULL DEFAULT 0,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
	}
}
