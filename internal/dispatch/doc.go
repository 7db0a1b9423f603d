// Package dispatch routes incoming command lines to the synchronous or
// asynchronous execution path.
//
// A line is classified by the interpreter's resolver: recall tokens are
// resolved against history, aliases are expanded, and the resulting verb is
// looked up in the registration table. The handler's declared mode decides
// the route:
//   - sync: executed inline via the executor, output returned directly
//   - async: a pending job record is created and a worker picks it up;
//     the caller gets the job id and a poll reference immediately
//
// Classification is an explicit result type, not exception flow: parse
// errors and unknown verbs are reported to the caller before any job record
// exists, and blank lines or recall misses are quiet no-ops.
package dispatch
