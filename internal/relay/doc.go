// Package relay routes application log events to sinks.
//
// A Router fans each Event out, in registration order, to every Sink whose
// minimum severity the event meets. Sinks are isolated from each other: an
// error or panic in one is reported to the router's fallback logger and the
// remaining sinks still run.
//
// NotificationSink forwards events to a chat under a sliding-window budget.
// Once the budget for the trailing period is spent, further events are
// dropped and a single "rate limit reached" notice is posted for the
// episode. Slots are spent before the network call, so a failing channel
// is never retried into a storm.
//
// Failures inside sinks go to a logx.Logger that is never wired back into a
// Router.
package relay
