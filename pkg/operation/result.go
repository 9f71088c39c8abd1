package operation

import (
	"encoding/json"
	"fmt"

	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/rs/zerolog/log"
)

// Result is a handler's successful outcome: a message, a structured value, or both.
// Failures are returned as errors alongside it.
type Result struct {
	Text string
	Data interface{}
}

// Textf builds a message-only result.
func Textf(format string, args ...interface{}) Result {
	return Result{Text: fmt.Sprintf(format, args...)}
}

// Structured builds a result carrying a value and a short summary.
func Structured(data interface{}, text string) Result {
	return Result{Data: data, Text: text}
}

// ErrorBody is the failure half of a Response.
type ErrorBody struct {
	Kind    errdefs.Kind `json:"kind"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
}

// Response is the caller-facing outcome of one call.
type Response struct {
	Operation string      `json:"operation"`
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Saved     string      `json:"saved,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
}

// Failure builds a failure response for err.
func Failure(op string, err error) Response {
	kind := errdefs.KindOf(err)
	return Response{
		Operation: op,
		Success:   false,
		Error: &ErrorBody{
			Kind:    kind,
			Code:    errdefs.Code(kind),
			Message: err.Error(),
		},
	}
}

// Err returns the failure as an error, or nil on success.
func (r Response) Err() error {
	if r.Success || r.Error == nil {
		return nil
	}
	return errdefs.New(r.Error.Kind, "", "%s", r.Error.Message)
}

// Content renders the response as text: the message for text operations,
// indented JSON of the data for structured ones.
func (r Response) Content() string {
	if !r.Success {
		if r.Error == nil {
			return "operation failed"
		}
		return fmt.Sprintf("%s: %s", r.Error.Code, r.Error.Message)
	}
	if r.Data == nil {
		return r.Message
	}
	data, err := json.MarshalIndent(r.Data, "", "  ")
	if err != nil {
		return r.Message
	}
	return string(data)
}

// Finalizer turns raw handler outcomes into responses. It is the one place
// where a modified but unsaved document gets persisted.
type Finalizer struct{}

// FinalizeResult maps raw and handlerErr into a Response. A successful call
// that modified a document without saving it is saved here: in session mode
// only when an output path was requested, in stateless mode always (to the
// output path, or back to the source). The output path applies to the
// call's source document only.
func (f *Finalizer) FinalizeResult(c *Context, raw Result, handlerErr error, output Output) Response {
	if handlerErr != nil {
		return Failure(c.Operation, handlerErr)
	}

	resp := Response{
		Operation: c.Operation,
		Success:   true,
		Message:   raw.Text,
	}
	if output == OutputStructured {
		resp.Data = raw.Data
	}

	for _, l := range c.leases {
		if l.saved != "" {
			resp.Saved = l.saved
		}
		if !l.write || !l.modified || l.saved != "" {
			continue
		}
		out := ""
		if c.isSource(l) {
			out = c.OutputPath
		}
		if l.session != nil && out == "" {
			// stays dirty in the session cache until an explicit save
			continue
		}
		if l.path == "" && out == "" {
			continue
		}

		target, err := l.Save(out)
		if err != nil {
			log.Error().
				Err(err).
				Str("operation", c.Operation).
				Str("path", l.path).
				Msg("Implicit save failed")
			return Failure(c.Operation, err)
		}
		resp.Saved = target
	}

	return resp
}
