// Package api holds the JSON types shared by the sandgate client and
// gateway: sandbox, template and context records, execution results, and
// the request/response bodies of the REST surface. Both transports
// exchange these exact shapes so a caller gets logically equivalent
// results either way.
package api
