// Package stats keeps counters of pool events. Both stores implement
// mediapool.Recorder and can be combined with the metrics recorder through
// mediapool.MultiRecorder.
//
//   - MemoryStore: in-process counters, for development and tests
//   - RedisStore: hash counters in Redis, optionally bucketed per minute
package stats
