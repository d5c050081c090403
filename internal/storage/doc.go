// Package storage provides the flat-file persistence used by the relay.
//
// Each piece of state lives in its own small JSON document:
//   - the destinations file (a JSON array of chat ids)
//   - the watermark file ({"last_news_id": <int>})
//
// Writes replace the file atomically; a missing file reads as the default value.
package storage
