package fhir

import "encoding/json"

// Bundle is the container document the FHIR service returns for type-level
// queries. Only the entry list is of interest to callers.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource"`
}

// Resources returns the raw resources held by the bundle's entries.
func (b Bundle) Resources() []json.RawMessage {
	out := make([]json.RawMessage, 0, len(b.Entry))
	for _, e := range b.Entry {
		out = append(out, e.Resource)
	}
	return out
}

// PatchOp is a single JSON Patch operation. A PATCH body is an ordered
// sequence of these, applied atomically by the server. Value stays raw so an
// explicit null survives the relay; From carries move/copy sources.
type PatchOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// --- Minimal resource schema used by the builders ---

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type ContactPoint struct {
	System string `json:"system,omitempty"` // phone, email
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"`
}

type Address struct {
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
}

type Communication struct {
	Language  CodeableConcept `json:"language"`
	Preferred bool            `json:"preferred,omitempty"`
}

// Extension carries US Core style demographic codings (race, ethnicity).
type Extension struct {
	URL         string      `json:"url"`
	ValueCoding *Coding     `json:"valueCoding,omitempty"`
	ValueString string      `json:"valueString,omitempty"`
	Extension   []Extension `json:"extension,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Annotation struct {
	Text string `json:"text,omitempty"`
}

// Patient is the clinical-resource document built from a PatientForm.
type Patient struct {
	ResourceType  string          `json:"resourceType"`
	ID            string          `json:"id,omitempty"`
	Identifier    []Identifier    `json:"identifier,omitempty"`
	Name          []HumanName     `json:"name,omitempty"`
	Telecom       []ContactPoint  `json:"telecom,omitempty"`
	Gender        string          `json:"gender,omitempty"`
	BirthDate     string          `json:"birthDate,omitempty"`
	Address       []Address       `json:"address,omitempty"`
	Communication []Communication `json:"communication,omitempty"`
	Extension     []Extension     `json:"extension,omitempty"`
}

// ServiceRequest is the referral order resource.
type ServiceRequest struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Status       string            `json:"status"`
	Intent       string            `json:"intent"`
	Priority     string            `json:"priority,omitempty"`
	Subject      Reference         `json:"subject"`
	Performer    []Reference       `json:"performer,omitempty"`
	ReasonCode   []CodeableConcept `json:"reasonCode,omitempty"`
	Note         []Annotation      `json:"note,omitempty"`
	AuthoredOn   string            `json:"authoredOn,omitempty"`
}

// Task tracks fulfilment of a ServiceRequest.
type Task struct {
	ResourceType string     `json:"resourceType"`
	ID           string     `json:"id,omitempty"`
	Status       string     `json:"status"`
	Intent       string     `json:"intent"`
	Priority     string     `json:"priority,omitempty"`
	Focus        *Reference `json:"focus,omitempty"`
	For          *Reference `json:"for,omitempty"`
	Owner        *Reference `json:"owner,omitempty"`
	Description  string     `json:"description,omitempty"`
	AuthoredOn   string     `json:"authoredOn,omitempty"`
}
