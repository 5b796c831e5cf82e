// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging for orchestration components.
// Every entry is tagged with the emitting component and, when the work
// belongs to a swarm run, the swarm id.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// LogEntry is the JSON shape written to stdout for log aggregation.
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	SwarmID    string                 `json:"swarm_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log creates a structured log entry and writes it to stdout
func (l *Logger) Log(level LogLevel, swarmID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		SwarmID:    swarmID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(swarmID, message string, fields map[string]interface{}) {
	l.Log(INFO, swarmID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(swarmID, message string, fields map[string]interface{}) {
	l.Log(ERROR, swarmID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(swarmID, message string, fields map[string]interface{}) {
	l.Log(WARN, swarmID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(swarmID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, swarmID, message, fields)
}

// WarnErr logs a warning carrying an underlying error
func (l *Logger) WarnErr(swarmID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Warn(swarmID, message, fields)
}

// ErrorErr logs an error message carrying an underlying error
func (l *Logger) ErrorErr(swarmID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(swarmID, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(swarmID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(swarmID, message, fields)
}
