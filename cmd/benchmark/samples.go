package main

// Sample is one review comment sent to the enhance endpoint.
type Sample struct {
	Name       string
	Content    string
	FilePath   string
	LineNumber int
}

// Samples are blunt review comments at increasing lengths, used for timing.
var Samples = []Sample{
	{
		Name:    "tiny",
		Content: "typo",
	},
	{
		Name:       "short",
		Content:    "This error handling is terrible. You just swallow the error.",
		FilePath:   "internal/api/handler.go",
		LineNumber: 42,
	},
	{
		Name: "medium",
		Content: `Why is this a global? Every request mutates the same map without a lock, so this will
race the moment two users hit the endpoint. I already asked for this to be fixed in the last PR.`,
		FilePath:   "internal/cache/cache.go",
		LineNumber: 17,
	},
	{
		Name: "long",
		Content: `I don't understand this function at all. It is 200 lines long, does parsing, validation,
database writes and sends emails, and none of it is tested. The variable names are meaningless (x, tmp2, data3)
and half of the branches can never be reached because the early return on line 30 already covers them.
Also the retry loop never backs off, so if the mail server is down we hammer it in a tight loop until the
request times out. Please split this up before anyone else has to read it.`,
		FilePath:   "internal/signup/service.go",
		LineNumber: 88,
	},
	{
		Name: "max",
		Content: `This migration is dangerous and should not be merged as is. It drops the old column in the same
release that stops writing to it, so any instance still running the previous version will crash on startup.
There is no down migration, no backfill for the rows created during the deploy window, and the index is built
without CONCURRENTLY, which locks the orders table for several minutes in production. The tests only run against
an empty database so none of this shows up in CI. We went through exactly this incident in March.
Please split it into expand and contract steps, add the backfill as a separate job, build the index
concurrently and add a test that runs the migration against a snapshot with realistic data. Until then this is a
hard no from me.`,
		FilePath: "db/migrations/0042_orders.sql",
	},
}

// QualitySamples cover tone and language variety for side-by-side review.
var QualitySamples = []Sample{
	{
		Name:    "harsh",
		Content: "This is garbage. Rewrite it.",
	},
	{
		Name:       "technical",
		Content:    "Mutex is held across the network call, obviously this deadlocks under load.",
		FilePath:   "pkg/pool/pool.go",
		LineNumber: 120,
	},
	{
		Name:    "french",
		Content: "erreur typographique",
	},
	{
		Name:    "japanese",
		Content: "タイポ",
	},
	{
		Name:       "sarcastic",
		Content:    "Nice, another 500-line PR with zero tests. Very brave.",
		FilePath:   "internal/billing/invoice.go",
		LineNumber: 1,
	},
}
