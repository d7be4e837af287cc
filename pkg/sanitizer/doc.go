// Package sanitizer normalizes client-supplied values before validation and
// storage.
//
// All functions are idempotent. Invalid input is never turned into a
// plausible-looking value: phone numbers that cannot be parsed are returned
// unchanged so that validation rejects them.
//
// Normalization includes:
//   - Names: trim and collapse inner whitespace, case preserved
//   - E-mail: trim and lowercase
//   - Phone numbers: E.164 (+[country][number]), regions PL, US and IL tried in order
//   - Currency codes: trim and uppercase
package sanitizer
