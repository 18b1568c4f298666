// Package dispatch routes verified events to per-event-type transition
// functions and applies the resulting subscription state with optimistic
// concurrency. Transition functions are pure: they compute the next plan
// state and any side effects from the event payload and the current
// subscription, while the dispatcher owns the write and the side-effect
// delivery.
package dispatch
