package events

import (
	"fmt"
	"strings"
	"sync"
)

// MessageTemplateEngine renders event messages from simple templates.
// Supported placeholders are {{.User}}, {{.Error}}, {{.Remaining}} and
// {{.Total}}, plus {{if .User}}...{{end}} and {{if .Error}}...{{end}} blocks.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[Type]string
}

var defaultEngine = NewMessageTemplateEngine()

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[Type]string),
	}
	engine.loadDefaultTemplates()
	return engine
}

func (e *MessageTemplateEngine) loadDefaultTemplates() {
	e.templates[TypeAuthStatusChanged] = "Authentication status changed"
	e.templates[TypeAuthSuccess] = "Signed in{{if .User}} as {{.User}}{{end}}"
	e.templates[TypeAuthError] = "Authentication failed{{if .Error}}: {{.Error}}{{end}}"
	e.templates[TypeAuthSignedOut] = "Signed out"
	e.templates[TypeUsageUpdated] = "{{.Remaining}} of {{.Total}} requests remaining"
}

// Render generates a message for the given event type and data.
func (e *MessageTemplateEngine) Render(t Type, data Data) string {
	template, exists := e.GetTemplate(t)
	if !exists {
		return fmt.Sprintf("Event: %s", string(t))
	}

	return e.renderTemplate(template, data)
}

// SetTemplate customizes the message template for an event type.
func (e *MessageTemplateEngine) SetTemplate(t Type, template string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t] = template
}

// GetTemplate returns the template for an event type.
func (e *MessageTemplateEngine) GetTemplate(t Type) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	template, exists := e.templates[t]
	return template, exists
}

func (e *MessageTemplateEngine) renderTemplate(template string, data Data) string {
	result := e.renderConditional(template, "{{if .User}}", "{{end}}", data.User != "")
	result = e.renderConditional(result, "{{if .Error}}", "{{end}}", data.Error != "")

	result = strings.ReplaceAll(result, "{{.User}}", data.User)
	result = strings.ReplaceAll(result, "{{.Error}}", data.Error)
	result = strings.ReplaceAll(result, "{{.Remaining}}", fmt.Sprintf("%d", data.Remaining))
	result = strings.ReplaceAll(result, "{{.Total}}", fmt.Sprintf("%d", data.Total))

	return result
}

// renderConditional keeps or drops the first block between startMarker and endMarker.
func (e *MessageTemplateEngine) renderConditional(template, startMarker, endMarker string, condition bool) string {
	startIndex := strings.Index(template, startMarker)
	if startIndex == -1 {
		return template
	}

	endIndex := strings.Index(template[startIndex:], endMarker)
	if endIndex == -1 {
		return template
	}
	endIndex += startIndex

	before := template[:startIndex]
	after := template[endIndex+len(endMarker):]
	if !condition {
		return before + after
	}
	return before + template[startIndex+len(startMarker):endIndex] + after
}
