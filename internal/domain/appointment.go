package domain

// AppointmentKind is the category of an appointment request.
type AppointmentKind string

const (
	KindShowing      AppointmentKind = "showing"
	KindConsultation AppointmentKind = "consultation"
	KindCancellation AppointmentKind = "cancellation"
)

// Known reports whether k is one of the kinds the assistant handles.
func (k AppointmentKind) Known() bool {
	switch k {
	case KindShowing, KindConsultation, KindCancellation:
		return true
	}
	return false
}

// AppointmentIntent is the structured appointment request extracted from a
// model reply. It is transient: incomplete intents are discarded, never
// partially saved.
type AppointmentIntent struct {
	Name string          `json:"name"`
	Kind AppointmentKind `json:"type"`
	Date string          `json:"date"` // YYYY-MM-DD
	Time string          `json:"time"` // HH:MM, 24-hour
}

// Complete reports whether all four intent fields are populated.
func (i AppointmentIntent) Complete() bool {
	return i.Name != "" && i.Kind != "" && i.Date != "" && i.Time != ""
}

// Appointment is a single persisted booking or cancellation record.
// Cancellations are stored as new records of kind cancellation; existing
// records are never mutated.
type Appointment struct {
	PK    string
	SK    string
	Phone string
	Name  string
	Kind  AppointmentKind
	Date  string
	Time  string
}
