package server

import "github.com/dermesser/brokerpc"

// JobValidator is the external schema-validation collaborator for
// top-level job structure (spec §1 Non-goals, §4.6). A nil JobValidator
// disables job-level validation.
type JobValidator interface {
	ValidateJob(jr brokerpc.JobRequest) []brokerpc.Error
}

// ResponseValidator is the external schema-validation collaborator for
// one action's response body. A nil ResponseValidator disables
// response validation.
type ResponseValidator interface {
	ValidateResponse(action string, body map[string]interface{}) []brokerpc.Error
}
