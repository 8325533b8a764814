// Package simulator fabricates deterministic execution results for the
// sandgate gateway. It never runs user code: it scans it line by line,
// turning print-style statements into stdout, error-style statements
// into a traceback and a non-zero exit code, and a handful of known
// terminal commands into canned output. Identical input always yields
// identical output, which is what the protocol layer and the tests rely
// on.
package simulator
