// Package flows holds the step sequences behind every Engine operation.
//
// Each Run* function takes its collaborators through a [Deps] value and
// returns a [Result] whose Failure classifies what went wrong. The engine maps
// failures onto its public error kinds and owns metrics and audit emission.
// Flows keep no state between calls.
package flows
