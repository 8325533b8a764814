// Package gateway implements the sandbox gateway: the REST surface, the
// websocket job stream, and the shared service layer both transports
// execute against.
//
// Every operation is defined once in Service so the two transports stay
// in semantic parity. The stream side correlates jobs by id and emits
// line, chunk, end and result frames; the REST side returns the same
// result bodies synchronously.
package gateway
