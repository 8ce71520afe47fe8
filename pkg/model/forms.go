package model

// PatientForm is the flat, UI-shaped payload sent by the front end when
// registering a patient. No field is validated here; the downstream FHIR
// service is the authority on what it accepts.
type PatientForm struct {
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName,omitempty"`
	LastName   string `json:"lastName"`
	BirthDate  string `json:"birthDate"` // YYYY-MM-DD
	Gender     string `json:"gender"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`

	Language  string `json:"language,omitempty"`
	Race      string `json:"race,omitempty"`
	Ethnicity string `json:"ethnicity,omitempty"`

	AddressLine string `json:"addressLine,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
}

// ReferralForm is the UI-shaped payload for creating a referral. It maps to a
// ServiceRequest plus a Task that tracks its fulfilment.
type ReferralForm struct {
	PatientID      string `json:"patientId"`
	PractitionerID string `json:"practitionerId,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Priority       string `json:"priority,omitempty"` // routine, urgent, asap, stat
	Notes          string `json:"notes,omitempty"`
}
