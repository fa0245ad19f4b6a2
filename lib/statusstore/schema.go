package statusstore

// Schema is the observation log. Append-only: the scraper writes one
// row per machine per poll and never reads its own output back into a
// scrape.
const Schema = `
CREATE TABLE IF NOT EXISTS observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	location TEXT NOT NULL,
	observed_at INTEGER NOT NULL,
	machine_id TEXT NOT NULL,
	machine_name TEXT NOT NULL,
	machine_type TEXT NOT NULL,
	state TEXT NOT NULL,
	remaining_seconds INTEGER,
	gateway_offline INTEGER
);
CREATE INDEX IF NOT EXISTS idx_observations_location_time
	ON observations (location, observed_at);
`
