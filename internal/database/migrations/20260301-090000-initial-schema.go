package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260301-090000",
		Description: "users, cached searches, tracked products and price history",
		Up: []string{
			// Identities come from bearer tokens; a row is created on first use.
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL DEFAULT '',
				search_count INTEGER NOT NULL DEFAULT 0,
				search_limit_resets_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS searches (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				query TEXT NOT NULL,
				normalized_query TEXT NOT NULL,
				results TEXT NOT NULL,
				insights TEXT NOT NULL,
				trace TEXT NOT NULL DEFAULT '[]',
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_searches_user_query ON searches(user_id, normalized_query, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at)`,

			`CREATE TABLE IF NOT EXISTS tracked_products (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				urls TEXT NOT NULL,
				listings TEXT NOT NULL DEFAULT '[]',
				target_price REAL,
				last_checked_at TEXT,
				next_check_at TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tracked_products_user ON tracked_products(user_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_tracked_products_next_check ON tracked_products(next_check_at)`,

			`CREATE TABLE IF NOT EXISTS price_history (
				id TEXT PRIMARY KEY,
				tracked_product_id TEXT NOT NULL REFERENCES tracked_products(id) ON DELETE CASCADE,
				platform TEXT NOT NULL,
				url TEXT NOT NULL,
				price REAL NOT NULL,
				availability TEXT NOT NULL,
				recorded_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(tracked_product_id, recorded_at)`,
		},
	})
}
