package database

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'farmer',
		total_conversations INTEGER NOT NULL DEFAULT 0,
		last_active TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT 'New Conversation',
		current_topic TEXT NOT NULL DEFAULT 'general',
		mentioned_crops JSONB NOT NULL DEFAULT '[]',
		region TEXT NOT NULL DEFAULT '',
		message_count INTEGER NOT NULL DEFAULT 0,
		bot_message_count INTEGER NOT NULL DEFAULT 0,
		avg_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_user_active ON conversations (user_id, is_active)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		message_type TEXT NOT NULL CHECK (message_type IN ('user', 'bot')),
		content TEXT NOT NULL,
		intent TEXT,
		confidence_score DOUBLE PRECISION,
		entities_found JSONB,
		sentiment_score DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at)`,
}
