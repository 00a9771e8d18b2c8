// Package lifecycle is the single authority for case transitions.
//
// Every function here is pure: it receives the current case and the current time, validates
// the guard against that state and returns an updated copy plus a Change describing what
// happened. Persisting the copy (conditioned on the version the caller read) and emitting the
// audit event are the caller's job, so owner actions, submitter actions and the sweeper all
// go through the same guards.
package lifecycle
