package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Tracing fields, carried on the context logger through a call chain.
const (
	FieldRequestID = "request_id"
	FieldComponent = "component"

	// FieldJobID is the question generation job being processed.
	FieldJobID = "job_id"

	// FieldItemID is a generated question under review.
	FieldItemID = "item_id"

	// FieldChapterID is the catalog chapter a generation step targets.
	FieldChapterID = "chapter_id"

	// FieldProvider is the AI backend handling a completion.
	FieldProvider = "provider"

	// FieldEndpoint is the logical caller of the completion gateway.
	FieldEndpoint = "endpoint"

	FieldUserID = "user_id"
)

// Metric fields, attached per log line through the Entry API so they
// can be aggregated downstream.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldCost       = "cost_usd"
	FieldTokens     = "tokens"
	FieldStatus     = "status"
)
