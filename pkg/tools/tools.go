// Package tools implements the four callable tool functions:
// value-based Tool descriptions the LLM Turn Engine registers and dispatches
// by name, each returning a JSON-serialized result string.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/llm"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/logging"
)

// TransferFunc is the injected fire-and-forget transfer sink:
// transfer(full_address) -> bool.
type TransferFunc func(address string) bool

// HangupFunc is the injected hang-up sink.
type HangupFunc func()

// NotifyFunc optionally dispatches an SMS/notification side effect for
// send_notification; nil disables dispatch (logging-only).
type NotifyFunc func(issue, location, urgency, callerName string) error

func successJSON(message string, extra map[string]string) string {
	m := map[string]string{"status": "ok", "message": message}
	for k, v := range extra {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func errorJSON(err error) string {
	b, _ := json.Marshal(map[string]string{"error": "tool_failed", "details": err.Error()})
	return string(b)
}

func arg(args map[string]string, key, def string) string {
	if v, ok := args[key]; ok && v != "" {
		return v
	}
	return def
}

// NewSendNotification builds the send_notification tool: issue (required),
// location, urgency (default "medium"), caller_name. Logs always; dispatches
// an SMS via notify when non-nil.
func NewSendNotification(logger logging.Logger, notify NotifyFunc) llm.ToolFunc {
	return llm.ToolFunc{
		Definition: llm.ToolDefinition{
			Name:        "send_notification",
			Description: "Notify staff of a caller's issue, with an urgency level.",
			Parameters: []llm.ToolParameter{
				{Name: "issue", Type: "string", Description: "What the caller needs help with", Required: true},
				{Name: "location", Type: "string", Description: "Caller's location, if known"},
				{Name: "urgency", Type: "string", Description: "low, medium, or high", Default: "medium"},
				{Name: "caller_name", Type: "string", Description: "Caller's name, if known"},
			},
		},
		Handle: func(ctx context.Context, args map[string]string) (string, error) {
			issue := args["issue"]
			if issue == "" {
				return errorJSON(fmt.Errorf("issue is required")), nil
			}
			urgency := arg(args, "urgency", "medium")
			location := args["location"]
			callerName := args["caller_name"]

			logger.Info("tools: notification", "issue", issue, "location", location, "urgency", urgency, "caller_name", callerName)

			if notify != nil {
				if err := notify(issue, location, urgency, callerName); err != nil {
					logger.Warn("tools: notification dispatch failed", "error", err)
					return errorJSON(err), nil
				}
			}
			return successJSON("Notification sent.", map[string]string{"urgency": urgency}), nil
		},
	}
}

// ExtensionMap resolves a short extension alias (e.g. "personal") to a full
// transfer address (e.g. "102@slowcasting.com").
type ExtensionMap map[string]string

// NewTransferConversation builds the transfer_conversation tool: extension
// (required, resolved via extMap), reason. Invokes transfer fire-and-forget.
func NewTransferConversation(logger logging.Logger, extMap ExtensionMap, transfer TransferFunc) llm.ToolFunc {
	return llm.ToolFunc{
		Definition: llm.ToolDefinition{
			Name:        "transfer_conversation",
			Description: "Transfer the call to a named extension.",
			Parameters: []llm.ToolParameter{
				{Name: "extension", Type: "string", Description: "Extension alias to transfer to", Required: true},
				{Name: "reason", Type: "string", Description: "Reason for the transfer"},
			},
		},
		Handle: func(ctx context.Context, args map[string]string) (string, error) {
			alias := args["extension"]
			if alias == "" {
				return errorJSON(fmt.Errorf("extension is required")), nil
			}
			address, ok := extMap[alias]
			if !ok {
				return errorJSON(fmt.Errorf("unknown extension %q", alias)), nil
			}

			reason := args["reason"]
			logger.Info("tools: transfer", "extension", alias, "address", address, "reason", reason)

			go func() {
				if transfer == nil {
					return
				}
				if ok := transfer(address); !ok {
					logger.Warn("tools: transfer failed", "address", address)
				}
			}()

			return successJSON(fmt.Sprintf("Transferring to extension %s.", address), nil), nil
		},
	}
}

// HangupDelay is the grace period end_conversation waits before invoking
// the hang-up sink, so the TTS farewell has time to play.
const HangupDelay = 3 * time.Second

// NewEndConversation builds the end_conversation tool: reason. Schedules a
// background hang-up after HangupDelay.
func NewEndConversation(logger logging.Logger, hangup HangupFunc) llm.ToolFunc {
	return llm.ToolFunc{
		Definition: llm.ToolDefinition{
			Name:        "end_conversation",
			Description: "End the call after the farewell has been spoken.",
			Parameters: []llm.ToolParameter{
				{Name: "reason", Type: "string", Description: "Reason the call is ending"},
			},
		},
		Handle: func(ctx context.Context, args map[string]string) (string, error) {
			reason := args["reason"]
			logger.Info("tools: end_conversation scheduled", "reason", reason, "delay", HangupDelay)

			go func() {
				time.Sleep(HangupDelay)
				if hangup != nil {
					hangup()
				}
			}()

			return successJSON("Ending the call.", map[string]string{"reason": reason}), nil
		},
	}
}

// NewScheduleFollowup builds the schedule_followup tool: service_type
// (default "callback"), location, preferred_time.
func NewScheduleFollowup(logger logging.Logger) llm.ToolFunc {
	return llm.ToolFunc{
		Definition: llm.ToolDefinition{
			Name:        "schedule_followup",
			Description: "Schedule a follow-up contact with the caller.",
			Parameters: []llm.ToolParameter{
				{Name: "service_type", Type: "string", Description: "Kind of follow-up", Default: "callback"},
				{Name: "location", Type: "string", Description: "Caller's location, if known"},
				{Name: "preferred_time", Type: "string", Description: "Caller's preferred contact time"},
			},
		},
		Handle: func(ctx context.Context, args map[string]string) (string, error) {
			serviceType := arg(args, "service_type", "callback")
			location := args["location"]
			preferredTime := args["preferred_time"]

			logger.Info("tools: followup scheduled", "service_type", serviceType, "location", location, "preferred_time", preferredTime)

			return successJSON("Follow-up scheduled.", map[string]string{
				"service_type":   serviceType,
				"preferred_time": preferredTime,
			}), nil
		},
	}
}
