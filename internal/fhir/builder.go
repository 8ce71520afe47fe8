package fhir

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebridge-health/fhir-relay/pkg/model"
)

const identifierSystem = "urn:carebridge:patient-id"

// BuildPatient maps a flat form payload onto a Patient document. Construction
// is pass-through: absent fields produce absent elements, and nothing is
// validated locally — the FHIR service is the authority on acceptance.
func BuildPatient(form model.PatientForm) Patient {
	p := Patient{
		ResourceType: "Patient",
		Identifier: []Identifier{
			{System: identifierSystem, Value: uuid.NewString()},
		},
		Gender:    form.Gender,
		BirthDate: form.BirthDate,
	}

	name := HumanName{Use: "official", Family: form.LastName}
	if form.FirstName != "" {
		name.Given = append(name.Given, form.FirstName)
	}
	if form.MiddleName != "" {
		name.Given = append(name.Given, form.MiddleName)
	}
	if name.Family != "" || len(name.Given) > 0 {
		p.Name = []HumanName{name}
	}

	if form.Phone != "" {
		p.Telecom = append(p.Telecom, ContactPoint{System: "phone", Value: form.Phone, Use: "mobile"})
	}
	if form.Email != "" {
		p.Telecom = append(p.Telecom, ContactPoint{System: "email", Value: form.Email})
	}

	if form.AddressLine != "" || form.City != "" || form.State != "" || form.PostalCode != "" {
		addr := Address{City: form.City, State: form.State, PostalCode: form.PostalCode}
		if form.AddressLine != "" {
			addr.Line = []string{form.AddressLine}
		}
		p.Address = []Address{addr}
	}

	if form.Language != "" {
		lang := CodeableConcept{Text: form.Language}
		if coding, ok := LookupLanguage(form.Language); ok {
			lang.Coding = []Coding{coding}
		}
		p.Communication = []Communication{{Language: lang, Preferred: true}}
	}

	if form.Race != "" {
		p.Extension = append(p.Extension, demographicExtension(raceExtensionURL, form.Race, LookupRace))
	}
	if form.Ethnicity != "" {
		p.Extension = append(p.Extension, demographicExtension(ethnicityExtensionURL, form.Ethnicity, LookupEthnicity))
	}

	return p
}

// demographicExtension wraps a race/ethnicity value in the US Core extension
// shape: a coded sub-extension when the value is in the table, plus the
// original text either way.
func demographicExtension(url, value string, lookup func(string) (Coding, bool)) Extension {
	ext := Extension{URL: url}
	if coding, ok := lookup(value); ok {
		ext.Extension = append(ext.Extension, Extension{URL: "ombCategory", ValueCoding: &coding})
	}
	ext.Extension = append(ext.Extension, Extension{URL: "text", ValueString: value})
	return ext
}

// BuildServiceRequest maps a referral form onto an active ServiceRequest for
// the named patient.
func BuildServiceRequest(form model.ReferralForm) ServiceRequest {
	sr := ServiceRequest{
		ResourceType: "ServiceRequest",
		Status:       "active",
		Intent:       "order",
		Priority:     form.Priority,
		Subject:      Reference{Reference: "Patient/" + form.PatientID},
		AuthoredOn:   time.Now().UTC().Format(time.RFC3339),
	}
	if form.PractitionerID != "" {
		sr.Performer = []Reference{{Reference: "Practitioner/" + form.PractitionerID}}
	}
	if form.Reason != "" {
		sr.ReasonCode = []CodeableConcept{{Text: form.Reason}}
	}
	if form.Notes != "" {
		sr.Note = []Annotation{{Text: form.Notes}}
	}
	return sr
}

// BuildTask creates the fulfilment Task for a created ServiceRequest.
func BuildTask(form model.ReferralForm, serviceRequestID string) Task {
	t := Task{
		ResourceType: "Task",
		Status:       "requested",
		Intent:       "order",
		Priority:     form.Priority,
		Focus:        &Reference{Reference: "ServiceRequest/" + serviceRequestID},
		For:          &Reference{Reference: "Patient/" + form.PatientID},
		Description:  form.Reason,
		AuthoredOn:   time.Now().UTC().Format(time.RFC3339),
	}
	if form.PractitionerID != "" {
		t.Owner = &Reference{Reference: "Practitioner/" + form.PractitionerID}
	}
	return t
}
