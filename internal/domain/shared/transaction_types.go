package shared

// Direction defines whether a movement adds to or takes from an account
type Direction string

const (
	DirectionCredit Direction = "CREDIT" // Setoran / Deposit
	DirectionDebit  Direction = "DEBIT"  // Penarikan / Withdrawal
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// EventStatus defines the authorization state of a transaction event
type EventStatus string

const (
	EventStatusPending  EventStatus = "PENDING"
	EventStatusApproved EventStatus = "APPROVED"
	EventStatusRejected EventStatus = "REJECTED"
)

// IsTerminal reports whether the status can no longer change
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusApproved || s == EventStatusRejected
}

// EventSource defines where a transaction event originated
type EventSource string

const (
	EventSourceMemberPayment EventSource = "MEMBER_PAYMENT"
	EventSourceBankStatement EventSource = "BANK_STATEMENT"
)

// CommandType defines the operations carried on the transaction command topic
type CommandType string

const (
	CommandTypeSubmit   CommandType = "SUBMIT"
	CommandTypeApprove  CommandType = "APPROVE"
	CommandTypeReject   CommandType = "REJECT"
	CommandTypeResubmit CommandType = "RESUBMIT"
)

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
