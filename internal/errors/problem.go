package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"annadata/internal/infrastructure"
)

// ProblemDetails is an RFC 7807 problem document. Extensions are written
// as top-level members next to the standard ones.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// NewProblemDetails creates a problem document
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension sets an extension member
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	type standard ProblemDetails
	base, err := json.Marshal((*standard)(pd))
	if err != nil || len(pd.Extensions) == 0 {
		return base, err
	}

	members := make(map[string]interface{}, len(pd.Extensions)+5)
	for k, v := range pd.Extensions {
		members[k] = v
	}
	// standard members win over an extension of the same name
	if err := json.Unmarshal(base, &members); err != nil {
		return nil, err
	}
	return json.Marshal(members)
}

// WriteProblem renders a problem for r with its status text as title and
// the request's trace id attached
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, problemType, detail string) {
	writeProblem(w, r, NewProblemDetails(status, problemType, http.StatusText(status), detail, r.URL.Path))
}

func writeProblem(w http.ResponseWriter, r *http.Request, problem *ProblemDetails) {
	if id := requestTraceID(r); id != "" {
		problem.WithExtension("trace_id", id)
	}
	_ = render.Render(w, r, problem)
}

// requestTraceID prefers the trace id the middleware chain stored and falls
// back to chi's request id
func requestTraceID(r *http.Request) string {
	if id := infrastructure.GetTraceID(r.Context()); id != "" {
		return id
	}
	return middleware.GetReqID(r.Context())
}
