package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidDeviceID  = errors.New("device_id is required")
	ErrInvalidCardUID   = errors.New("card_uid is required")
	ErrInvalidEventType = errors.New("event_type must be one of time_in, time_out, break_start, break_end")
	ErrUnknownDevice    = errors.New("device is not registered")

	ErrInvalidScanTimestamp = errors.New("scan_timestamp must be RFC3339")
)

// ValidationError reports malformed query input, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// orNil returns e only if it holds at least one field error.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
