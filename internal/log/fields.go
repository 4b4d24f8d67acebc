package log

// Common field names for structured logging.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldTransaction = "transaction_id"
	FieldAccount     = "account_id"
	FieldCategory    = "category_id"
	FieldAmount      = "amount"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldAttempt     = "attempt"
)

// Standard component names.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentAggregate = "aggregate"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentExport    = "export"
)

// Standard operation names.
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpTransfer = "transfer"
	OpList     = "list"
	OpRebuild  = "rebuild"
	OpExport   = "export"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
