package fhir

import "strings"

// Static code-table translations from form values to codings. Unrecognised
// values are passed through as text rather than dropped, so the downstream
// service sees everything the front end sent.

const (
	languageSystem      = "urn:ietf:bcp:47"
	raceEthnicitySystem = "urn:oid:2.16.840.1.113883.6.238"

	raceExtensionURL      = "http://hl7.org/fhir/us/core/StructureDefinition/us-core-race"
	ethnicityExtensionURL = "http://hl7.org/fhir/us/core/StructureDefinition/us-core-ethnicity"
)

var languageCodes = map[string]Coding{
	"english":    {System: languageSystem, Code: "en", Display: "English"},
	"spanish":    {System: languageSystem, Code: "es", Display: "Spanish"},
	"french":     {System: languageSystem, Code: "fr", Display: "French"},
	"mandarin":   {System: languageSystem, Code: "zh", Display: "Chinese"},
	"vietnamese": {System: languageSystem, Code: "vi", Display: "Vietnamese"},
	"arabic":     {System: languageSystem, Code: "ar", Display: "Arabic"},
	"russian":    {System: languageSystem, Code: "ru", Display: "Russian"},
}

var raceCodes = map[string]Coding{
	"american indian or alaska native":          {System: raceEthnicitySystem, Code: "1002-5", Display: "American Indian or Alaska Native"},
	"asian":                                     {System: raceEthnicitySystem, Code: "2028-9", Display: "Asian"},
	"black or african american":                 {System: raceEthnicitySystem, Code: "2054-5", Display: "Black or African American"},
	"native hawaiian or other pacific islander": {System: raceEthnicitySystem, Code: "2076-8", Display: "Native Hawaiian or Other Pacific Islander"},
	"white":                                     {System: raceEthnicitySystem, Code: "2106-3", Display: "White"},
	"other":                                     {System: raceEthnicitySystem, Code: "2131-1", Display: "Other Race"},
}

var ethnicityCodes = map[string]Coding{
	"hispanic or latino":     {System: raceEthnicitySystem, Code: "2135-2", Display: "Hispanic or Latino"},
	"not hispanic or latino": {System: raceEthnicitySystem, Code: "2186-5", Display: "Not Hispanic or Latino"},
}

// LookupLanguage translates a form language value into a BCP-47 coding.
func LookupLanguage(value string) (Coding, bool) {
	c, ok := languageCodes[normalize(value)]
	return c, ok
}

// LookupRace translates a form race value into a CDC race coding.
func LookupRace(value string) (Coding, bool) {
	c, ok := raceCodes[normalize(value)]
	return c, ok
}

// LookupEthnicity translates a form ethnicity value into a CDC ethnicity coding.
func LookupEthnicity(value string) (Coding, bool) {
	c, ok := ethnicityCodes[normalize(value)]
	return c, ok
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
