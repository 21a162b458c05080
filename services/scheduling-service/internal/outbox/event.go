package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the scheduling core.
const (
	EventAvailabilityChanged      = "scheduling.availability.changed.v1"
	EventAppointmentStatusChanged = "scheduling.appointment.status.changed.v1"
)
