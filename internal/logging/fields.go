package logging

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldUserID        = "user_id"
	FieldActorID       = "actor_id"
	FieldAmount        = "amount"
	FieldCurrency      = "currency"
	FieldTransactionNo = "transaction_no"
	FieldMissionID     = "mission_id"
	FieldInstanceID    = "instance_id"
	FieldCount         = "count"
)

// Components
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentMission   = "mission"
	ComponentUser      = "user"
	ComponentAllowance = "allowance"
	ComponentStorage   = "storage"
	ComponentOutbox    = "outbox"
	ComponentBroker    = "broker"
	ComponentJob       = "job"
)
