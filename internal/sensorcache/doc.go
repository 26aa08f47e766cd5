// Package sensorcache implements the Sensor Cache (spec §4.2, C2): Get is a
// read-through lookup across three tiers — the state bus's live key, its
// last-good companion, and the time-series DB fallback. The Control Engine
// and the rules engine read through Value, which consults only the two bus
// tiers.
//
// Grounded on ManuGH-xg2g's internal/cache.RedisCache tiered-lookup shape
// (live cache, then fall through on miss), generalized here to a third,
// durable tier and wired to the Alarm Manager for missing-sensor
// escalation (spec §4.9).
package sensorcache
