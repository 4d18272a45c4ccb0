package practicum

import (
	"fmt"

	logx "homeworkbot/pkg/logx"
)

// Status is a review status code reported by the API.
type Status string

const (
	StatusApproved  Status = "approved"
	StatusReviewing Status = "reviewing"
	StatusRejected  Status = "rejected"
)

var verdicts = map[Status]string{
	StatusApproved:  "The work has been reviewed: the reviewer liked everything. Hooray!",
	StatusReviewing: "The work has been taken for review by the reviewer.",
	StatusRejected:  "The work has been reviewed: the reviewer has comments.",
}

// Verdict returns the fixed sentence for s.
func Verdict(s Status) (string, bool) {
	v, ok := verdicts[s]
	return v, ok
}

// ParseStatus turns a homework record into the chat message announcing its
// current verdict.
func ParseStatus(rec Record, log logx.Logger) (string, error) {
	fail := func(field, reason string) (string, error) {
		log.Error("homework record rejected", logx.String("field", field), logx.String("reason", reason))
		return "", &SchemaError{Field: field, Reason: reason}
	}

	nameRaw, ok := rec["homework_name"]
	if !ok {
		return fail("homework_name", "missing")
	}
	name, ok := nameRaw.(string)
	if !ok {
		return fail("homework_name", fmt.Sprintf("expected string, got %s", jsonKind(nameRaw)))
	}
	statusRaw, ok := rec["status"]
	if !ok {
		return fail("status", "missing")
	}
	code, _ := statusRaw.(string)
	verdict, ok := Verdict(Status(code))
	if !ok {
		return fail("status", fmt.Sprintf("unknown status %v", statusRaw))
	}
	return fmt.Sprintf("Status changed for homework \"%s\". %s", name, verdict), nil
}
