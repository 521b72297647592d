// Package redisstream feeds a bus from a Redis Stream.
//
// Source name: "redis-streams"
//
// Each stream entry is one inbound event:
//   - topic: routing topic (required)
//   - kind: payload shape, "state_change" or "status" (optional)
//   - payload: JSON-encoded payload bytes (optional)
//   - id: event id (optional, generated when absent)
//   - time: unix nanoseconds (optional)
//
// Minimal config keys:
//   - addr: "host:port" (default "127.0.0.1:6379")
//   - stream: stream to read (default "xhub:events")
//   - group: consumer group name (default "xhub")
//   - consumer: consumer name (default derived from hostname+pid)
//   - batch_size: XREADGROUP COUNT (default 128)
//   - block: XREADGROUP BLOCK duration (default 5s)
//   - auto_create: create group/stream if missing (default true)
//
// Example:
//
//	bus, _ := xhub.NewBusBuilder().
//	    WithConfig(xhub.Config{Source: xhub.SourceConfig{
//	        Name: redisstream.SourceName,
//	        Options: map[string]any{
//	            "addr":   "localhost:6379",
//	            "stream": "hass:events",
//	            "group":  "automation",
//	        },
//	    }}).
//	    Build()
package redisstream
