// Package session defines the canonical session data model.
//
// A Session aggregates question-centric Instances (question, answer, hints
// with metrics and entity annotations, candidate lists) under an opaque
// session key. ImportBatch is the transient parsed form that exists only
// between parse and a successful commit.
package session
