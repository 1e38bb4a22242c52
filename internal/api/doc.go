// Package api exposes the authority over HTTP/JSON with Fiber.
//
// Routes live under /api. Trailing slashes are optional. Errors are JSON
// objects of the form {"error": message, "code": CODE} with the status
// derived from the code:
//
//	400 MALFORMED_TOKEN, INVALID_REQUEST
//	404 NOT_FOUND, PARTICIPANT_NOT_FOUND
//	409 INVALID_TRANSITION
//	503 NETWORK_FAILURE
//
// A join answers 201 when it created the participant and 200 when the
// identity was already registered.
package api
