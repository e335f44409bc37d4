package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Definitions describes every operation as an OpenAI function tool.
func Definitions() []openai.Tool {
	str := func(desc string) jsonschema.Definition {
		return jsonschema.Definition{Type: jsonschema.String, Description: desc}
	}
	object := func(props map[string]jsonschema.Definition, required ...string) jsonschema.Definition {
		if props == nil {
			props = map[string]jsonschema.Definition{}
		}
		return jsonschema.Definition{Type: jsonschema.Object, Properties: props, Required: required}
	}
	fn := func(name, desc string, params jsonschema.Definition) openai.Tool {
		return openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{Name: name, Description: desc, Parameters: params},
		}
	}

	return []openai.Tool{
		fn(NameIdentifyUser, "Identify the user by their phone number", object(map[string]jsonschema.Definition{
			"contact_number": str("The user's contact/phone number"),
			"name":           str("The user's name (optional but helpful if known)"),
		}, "contact_number")),
		fn(NameFetchSlots, "Fetch available appointment slots", object(nil)),
		fn(NameBookAppointment, "Book an appointment", object(map[string]jsonschema.Definition{
			"contact_number": str("The user's contact number"),
			"name":           str("The user's name"),
			"time":           str("The requested appointment time"),
		}, "contact_number", "name", "time")),
		fn(NameCancelAppointment, "Cancel an existing appointment", object(map[string]jsonschema.Definition{
			"contact_number": str("The user's contact number"),
			"time":           str("The time of the appointment to cancel"),
		}, "contact_number", "time")),
		fn(NameRetrieveAppointments, "Retrieve past appointments", object(map[string]jsonschema.Definition{
			"contact_number": str("The user's contact number"),
		}, "contact_number")),
		fn(NameEndConversation, "End the conversation", object(nil)),
	}
}

type arguments struct {
	ContactNumber string `json:"contact_number"`
	Name          string `json:"name"`
	Time          string `json:"time"`
}

// Call dispatches one model tool call. The error is reserved for calls the
// model should not have made (unknown tool, malformed arguments).
func (t *Tools) Call(ctx context.Context, name, rawArgs string) (string, error) {
	var args arguments
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("decode %s arguments: %w", name, err)
		}
	}

	switch name {
	case NameIdentifyUser:
		return t.IdentifyUser(ctx, args.ContactNumber, args.Name), nil
	case NameFetchSlots:
		slots := t.FetchSlots(ctx)
		out, err := json.Marshal(slots)
		if err != nil {
			return "", fmt.Errorf("encode slots: %w", err)
		}
		return string(out), nil
	case NameBookAppointment:
		return t.BookAppointment(ctx, args.ContactNumber, args.Name, args.Time), nil
	case NameCancelAppointment:
		return t.CancelAppointment(ctx, args.ContactNumber, args.Time), nil
	case NameRetrieveAppointments:
		return t.RetrieveAppointments(ctx, args.ContactNumber), nil
	case NameEndConversation:
		return t.EndConversation(ctx), nil
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}
