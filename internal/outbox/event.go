package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventBookingCreated         = "booking.created.v1"
	EventBookingRescheduled     = "booking.rescheduled.v1"
	EventBookingCancelled       = "booking.cancelled.v1"
	EventRecurrenceMaterialized = "booking.recurrence.materialized.v1"
	EventRecurrenceConflict     = "booking.recurrence.conflict.v1"
	EventRecurrenceCompleted    = "booking.recurrence.completed.v1"
)
