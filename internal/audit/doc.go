// Package audit dispatches security events to a Sink off the request path.
//
// The [Dispatcher] decides only how events are buffered and delivered. Which
// events are emitted is up to the engine.
package audit
