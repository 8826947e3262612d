// Package hook decodes agent hook requests and encodes the gate's decision
// in the format of the hook event that invoked it.
package hook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/xde-mcp/cmdgate/internal/api"
	"github.com/xde-mcp/cmdgate/internal/logger"
	"github.com/xde-mcp/cmdgate/internal/rules"
	"github.com/xde-mcp/cmdgate/internal/types"
)

var log = logger.New("hook")

// BashTool is the only tool whose requests are classified.
const BashTool = "Bash"

// MaxRequestSize bounds the stdin payload.
const MaxRequestSize = api.MaxBodySize

// Classifier decides one command.
type Classifier interface {
	Classify(cmd string) rules.Decision
}

// Recorder is told about every decision the gate makes.
type Recorder interface {
	Record(command string, d rules.Decision)
}

// request is decoded loosely; the agent sends many tool shapes and only
// Bash requests with a string command are ours.
type request struct {
	ToolName  any `json:"tool_name"`
	ToolInput any `json:"tool_input"`
}

type bashInput struct {
	Command string `validate:"required,max=65536"`
}

var validate = validator.New()

// Command extracts the Bash command from a raw hook request. ok is false
// for anything that is not a well-formed Bash request.
func Command(payload []byte) (cmd string, ok bool) {
	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Debug("Ignoring undecodable request: %v", err)
		return "", false
	}
	if name, _ := req.ToolName.(string); name != BashTool {
		return "", false
	}
	input, isMap := req.ToolInput.(map[string]any)
	if !isMap {
		return "", false
	}
	command, isString := input["command"].(string)
	if !isString {
		return "", false
	}
	if err := validate.Struct(bashInput{Command: command}); err != nil {
		log.Debug("Ignoring Bash request: %v", err)
		return "", false
	}
	return command, true
}

type preToolUseOutput struct {
	HookSpecificOutput preToolUseDecision `json:"hookSpecificOutput"`
}

type preToolUseDecision struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason"`
}

type permissionRequestOutput struct {
	HookSpecificOutput permissionRequestDecision `json:"hookSpecificOutput"`
}

type permissionRequestDecision struct {
	HookEventName string             `json:"hookEventName"`
	Decision      permissionBehavior `json:"decision"`
}

type permissionBehavior struct {
	Behavior string `json:"behavior"`
	Message  string `json:"message,omitempty"`
}

// Encode renders d for event. It returns nil when the decision produces
// no output, which the agent reads as "continue with the normal flow".
// PermissionRequest has no ask behavior, so Ask is silent there.
func Encode(event types.HookEvent, d rules.Decision) ([]byte, error) {
	if !d.Verdict.IsDecisive() {
		return nil, nil
	}
	switch event {
	case types.HookEventPreToolUse:
		return json.Marshal(preToolUseOutput{HookSpecificOutput: preToolUseDecision{
			HookEventName:            string(event),
			PermissionDecision:       string(d.Verdict),
			PermissionDecisionReason: d.Reason,
		}})
	case types.HookEventPermissionRequest:
		out := permissionRequestDecision{HookEventName: string(event)}
		switch d.Verdict {
		case types.VerdictAllow:
			out.Decision.Behavior = "allow"
		case types.VerdictDeny:
			out.Decision = permissionBehavior{Behavior: "deny", Message: d.Reason}
		default:
			return nil, nil
		}
		return json.Marshal(permissionRequestOutput{HookSpecificOutput: out})
	}
	return nil, fmt.Errorf("unknown hook event %q", event)
}

// Gate ties the request decoder, the classifier and the decision encoder.
type Gate struct {
	classifier Classifier
	recorder   Recorder
}

// NewGate creates a gate. recorder may be nil.
func NewGate(c Classifier, recorder Recorder) *Gate {
	return &Gate{classifier: c, recorder: recorder}
}

// Decide classifies the command in payload. Requests that are not Bash
// commands get no opinion without reaching the classifier.
func (g *Gate) Decide(payload []byte) (string, rules.Decision) {
	cmd, ok := Command(payload)
	if !ok {
		return "", rules.Decision{Verdict: types.VerdictNoOpinion, Reason: "not a Bash command request"}
	}
	d := g.classifier.Classify(cmd)
	if g.recorder != nil {
		g.recorder.Record(cmd, d)
	}
	return cmd, d
}

// Run reads one request from in and writes the decision for event to out.
// Input problems are swallowed: the hook must never fail the tool call.
func (g *Gate) Run(in io.Reader, out io.Writer, event types.HookEvent) error {
	payload, err := io.ReadAll(io.LimitReader(in, MaxRequestSize+1))
	if err != nil {
		log.Warn("Failed to read hook request: %v", err)
		return nil
	}
	if len(payload) > MaxRequestSize {
		log.Warn("Hook request larger than %d bytes ignored", MaxRequestSize)
		return nil
	}
	_, d := g.Decide(payload)
	data, err := Encode(event, d)
	if err != nil || data == nil {
		return err
	}
	_, err = out.Write(append(data, '\n'))
	return err
}

// HandleHook serves POST /api/hook?event=pre-tool-use|permission-request.
// A decision with no output is answered with 204.
func (g *Gate) HandleHook(c *gin.Context) {
	event := types.ParseHookEvent(c.Query("event"))
	if !event.Valid() {
		api.Error(c, http.StatusBadRequest, "unknown event")
		return
	}
	payload, err := c.GetRawData()
	if err != nil {
		api.Error(c, http.StatusBadRequest, "Failed to read body")
		return
	}
	var out bytes.Buffer
	if err := g.Run(bytes.NewReader(payload), &out, event); err != nil {
		api.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	if out.Len() == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "application/json", out.Bytes())
}
