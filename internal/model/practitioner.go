package model

import "time"

type Specialty struct {
	ID          string
	Name        string
	Description string
	Active      bool
}

type Practitioner struct {
	ID            string
	Name          string
	LicenseNumber string
	Phone         string
	Email         string
	SpecialtyID   string
	SpecialtyName string
	Active        bool
	CreatedAt     time.Time
}

// AvailabilityWindow is a recurring weekly range in which a practitioner
// accepts bookings. Start and End are offsets from local midnight.
type AvailabilityWindow struct {
	ID             string
	PractitionerID string
	Weekday        time.Weekday
	Start          time.Duration
	End            time.Duration
	Active         bool
}

type Patient struct {
	ID        string
	Name      string
	Phone     string
	Email     string
	BirthDate *time.Time
	CreatedAt time.Time
}
