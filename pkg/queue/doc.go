// Package queue provides the single-consumer cooperative task queue used to
// serialize per-account state transitions: one Queue backs the Store/Manager
// domain for an account's Resource Manager, and a second backs its Transfer
// Layer's delegate domain. Submitting a task never blocks the submitter on
// the task's execution; tasks run strictly in submission order on the
// queue's own goroutine.
package queue
