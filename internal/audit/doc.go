// Package audit relays sign-in and session events to a sink without
// blocking the request that produced them.
//
// The Dispatcher owns buffering only. Callers decide which events exist;
// sinks decide where they go (a channel, JSON lines, the zap logger).
package audit
