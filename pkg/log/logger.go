package log

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Logger is the structured logger every component accepts.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is one key-value pair attached to a log event. Build fields with
// the constructors below; Value holds the typed value.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field             { return Field{Key: key, Value: value} }
func Int(key string, value int) Field            { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field        { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field      { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field          { return Field{Key: key, Value: value} }
func Duration(key string, d time.Duration) Field { return Field{Key: key, Value: d} }

// Time logs t converted to UTC.
func Time(key string, t time.Time) Field {
	return Field{Key: key, Value: t.UTC()}
}

// Stringer logs the String form of v, evaluated when the field is built.
func Stringer(key string, v fmt.Stringer) Field {
	return Field{Key: key, Value: v.String()}
}

// Hex logs b hex encoded, truncated to the first 32 bytes.
func Hex(key string, b []byte) Field {
	const max = 32
	if len(b) > max {
		return Field{Key: key, Value: hex.EncodeToString(b[:max]) + "..."}
	}
	return Field{Key: key, Value: hex.EncodeToString(b)}
}

// Err attaches err under the key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any attaches v as is; the adapter serializes it.
func Any(key string, v any) Field {
	return Field{Key: key, Value: v}
}
