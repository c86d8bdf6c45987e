// Package internal holds helpers private to phoneauth: session id generation
// and the sub-packages the engine and commands are assembled from.
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: flow functions behind every Engine operation
//   - rate: Redis fixed-window throttles for login and refresh
//   - config: process configuration loaded from the environment
//   - telemetry: OTLP meter provider setup
package internal
