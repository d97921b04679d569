package postgres

// migrations применяются по возрастанию версии; номера не переиспользуются.
var migrations = []struct {
	version int
	sql     string
}{
	{1, migration001Economy},
	{2, migration002Mining},
	{3, migration003Boosts},
	{4, migration004Streaks},
	{5, migration005Admin},
}

var migration001Economy = `
CREATE TABLE IF NOT EXISTS balances (
    id BIGSERIAL PRIMARY KEY,
    user_id UUID UNIQUE NOT NULL,
    balance BIGINT NOT NULL DEFAULT 0,
    total_earned BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS transactions (
    id BIGSERIAL PRIMARY KEY,
    user_id UUID NOT NULL,
    session_id UUID,
    credit_key VARCHAR(128) UNIQUE,
    amount BIGINT NOT NULL CHECK (amount >= 0),
    transaction_type VARCHAR(50) NOT NULL,
    description TEXT,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_session ON transactions(session_id);
`

var migration002Mining = `
CREATE TABLE IF NOT EXISTS mining_sessions (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at TIMESTAMPTZ,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    recorded_points BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_mining_sessions_active
    ON mining_sessions(user_id, started_at DESC) WHERE is_active;
`

var migration003Boosts = `
CREATE TABLE IF NOT EXISTS referral_boosts (
    id BIGSERIAL PRIMARY KEY,
    user_id UUID NOT NULL,
    referred_user_id UUID NOT NULL,
    pct NUMERIC(6,2) NOT NULL CHECK (pct >= 0),
    created_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (user_id, referred_user_id)
);
CREATE TABLE IF NOT EXISTS x_boosts (
    id BIGSERIAL PRIMARY KEY,
    user_id UUID NOT NULL,
    kind VARCHAR(16) NOT NULL CHECK (kind IN ('profile', 'post')),
    pct NUMERIC(6,2) NOT NULL CHECK (pct >= 0),
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_x_boosts_user ON x_boosts(user_id);
CREATE TABLE IF NOT EXISTS arena_boosts (
    id BIGSERIAL PRIMARY KEY,
    user_id UUID NOT NULL,
    pct NUMERIC(6,2) NOT NULL CHECK (pct >= 0),
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_arena_boosts_user ON arena_boosts(user_id, expires_at);
`

var migration004Streaks = `
CREATE TABLE IF NOT EXISTS streaks (
    id BIGSERIAL PRIMARY KEY,
    user_id UUID UNIQUE NOT NULL,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_active_date DATE,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
`

var migration005Admin = `
CREATE TABLE IF NOT EXISTS credit_failures (
    id BIGSERIAL PRIMARY KEY,
    user_id UUID NOT NULL,
    session_id UUID NOT NULL,
    window_started_at TIMESTAMPTZ NOT NULL,
    amount BIGINT NOT NULL,
    source VARCHAR(32) NOT NULL,
    error TEXT,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    resolved_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_credit_failures_pending ON credit_failures(created_at) WHERE resolved_at IS NULL;
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    actor VARCHAR(128) NOT NULL,
    attempt_time TIMESTAMPTZ DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_actor ON admin_login_attempts(actor, attempt_time);
`
