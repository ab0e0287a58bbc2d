// Package puntingform is the minimal Punting Form v2 API client the gear
// collector needs.
//
// Every call tries the X-Api-Key header first and falls back to the apiKey
// query parameter, which some endpoints still require. JSON responses are
// unwrapped from their payLoad envelope. CSV endpoints degrade to an empty
// result instead of an error, since a race that does not exist and a race the
// key cannot see are indistinguishable to the caller. GetCSVRaw exists for the
// debug routes and exposes what each attempt actually returned.
package puntingform
