// Package protocol defines the wire format shared by the sandgate client
// and gateway.
//
// A job is submitted as a single JobRequest envelope carrying a
// process-unique correlation id, an operation name, and an opaque JSON
// payload. The gateway answers with zero or more streaming frames followed
// by exactly one terminal frame, all tagged with the same job id. Frame
// kinds form a closed set so that routing can be an exhaustive switch
// rather than a string-keyed handler lookup.
package protocol
