// Package practicum talks to the Yandex Practicum homework_statuses API.
//
// The API is treated as untrusted. The client only classifies failures
// (unexpected status, non-JSON body, transport failure) and hands back the
// decoded JSON value untouched; ValidateResponse and ParseStatus then check
// the shape before anything reaches the chat.
package practicum
