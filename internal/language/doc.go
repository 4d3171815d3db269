// Package language normalizes manuscript language tags and applies
// language-aware casing to generated chapter and scene titles.
//
// Callers may pass BCP-47 tags ("en-GB"), ISO 639 codes ("eng", "fre") or
// plain English names ("german"); everything is reduced to a canonical
// BCP-47 string before it is stored on a job or sent to a collaborator.
package language
