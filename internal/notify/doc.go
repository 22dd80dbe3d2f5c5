// Package notify turns supervisor lifecycle events into side effects.
//
// Each sink implements process.EventSink and owns one destination:
//
//	LogSink       structured log line per event
//	MQTTSink      nodeward/lifecycle/{instance}/{event} plus retained state
//	MetricsSink   process_lifecycle points in InfluxDB
//	EventLogSink  rows in the lifecycle_events table
//
// Fanout combines them so the supervisor sees a single sink. Sinks never
// return errors to the supervisor; failures are logged and the event is
// dropped for that destination only.
package notify
