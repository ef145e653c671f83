package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260315-120000",
		Description: "object storage key for archived search results",
		Up: []string{
			`ALTER TABLE searches ADD COLUMN archive_key TEXT`,
		},
	})
}
