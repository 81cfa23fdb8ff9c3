package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldError     = "error"
	FieldOwnerID   = "owner_id"
	FieldRuleID    = "rule_id"
	FieldRuleName  = "rule_name"
	FieldEntryID   = "entry_id"
	FieldInstance  = "instance_id"
	FieldRunID     = "run_id"
	FieldCreated   = "created"
	FieldSkipped   = "skipped"
	FieldScope     = "scope"
	FieldScheduled = "scheduled_for"
	FieldQueue     = "queue"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentWorker  = "worker"
	ComponentBackend = "backend"
)
