package storage

// Package storage is the durable entity store for the challenge:
// groups, per-group settings, participants, daily ballots, responses,
// and daily/period results.
//
// It is the authoritative arbiter for the idempotency guards the rest
// of the bot relies on: the UNIQUE(group, day) ballot slot, the
// UNIQUE(ballot, voter) response upsert, and the insert-once period
// results. Callers never parse constraint errors; guarded writes are
// expressed as ON CONFLICT clauses and report what happened.
