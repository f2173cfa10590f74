package http

import (
	"encoding/json"
	"net/http"
)

// HTMXResponseBuilder provides a fluent API for building HTMX responses.
// It encapsulates the construction of HX-Trigger headers and response bodies.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerRecordsChanged signals list and summary partials for a tax year
// to refresh.
func (b *HTMXResponseBuilder) TriggerRecordsChanged(yearLabel string) *HTMXResponseBuilder {
	return b.Trigger("records:changed", map[string]string{"tax_year": yearLabel})
}

// TriggerImportCompleted signals the import page after a statement upload.
func (b *HTMXResponseBuilder) TriggerImportCompleted(inserted, duplicates int) *HTMXResponseBuilder {
	return b.Trigger("import:completed", map[string]int{
		"inserted":   inserted,
		"duplicates": duplicates,
	})
}

// TriggerExportQueued signals the export page that a job was enqueued.
func (b *HTMXResponseBuilder) TriggerExportQueued(jobID string) *HTMXResponseBuilder {
	return b.Trigger("export:queued", map[string]string{"job_id": jobID})
}

// TriggerFormReset adds the form:reset trigger.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger("form:reset", struct{}{})
}

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
)

// TriggerNotification adds a show-notification trigger.
func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(notifType),
		"message":  message,
		"duration": 3000,
	})
}

// TriggerSuccessNotification is a convenience method for success notifications.
func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message)
}

// TriggerErrorNotification is a convenience method for error notifications.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message)
}

// Body sets the response body.
func (b *HTMXResponseBuilder) Body(body string) *HTMXResponseBuilder {
	b.body = []byte(body)
	return b
}

// Header sets a response header.
func (b *HTMXResponseBuilder) Header(key, value string) *HTMXResponseBuilder {
	b.headers[key] = value
	return b
}

// Write sends the response. Triggers are JSON-encoded into a single
// HX-Trigger header; an encoding failure drops the triggers but still
// writes the body.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) error {
	for key, value := range b.headers {
		w.Header().Set(key, value)
	}

	if len(b.triggers) > 0 {
		payload, err := json.Marshal(b.triggers)
		if err == nil {
			w.Header().Set("HX-Trigger", string(payload))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, err := w.Write(b.body)
		return err
	}
	return nil
}
