package brokerpc

// ActionRequest is one named operation within a Job, along with its input
// body. The body is a nested map of primitives plus the extension types
// the serializer package knows how to round-trip.
type ActionRequest struct {
	Action string
	Body   map[string]interface{}
}

// ActionResponse is the result of dispatching one ActionRequest. Errors is
// ordered; a non-empty Errors slice means Body may be nil.
type ActionResponse struct {
	Action string
	Body   map[string]interface{}
	Errors []Error
}

// Error is a single machine-readable error attached to an ActionResponse
// or JobResponse.
type Error struct {
	Code              string
	Message           string
	Field             string
	Traceback         string
	Variables         map[string]string
	DeniedPermissions []string
	IsCallerError     bool
}

// IsFieldError reports whether this error is scoped to a single input
// field (schema validation errors are always field errors).
func (e Error) IsFieldError() bool {
	return e.Field != ""
}

// Context carries caller identity and cross-cutting request state. Its
// CorrelationID and Switches are carried into nested client calls a server
// handler makes through client.Scoped; Extra is not carried over.
type Context struct {
	CorrelationID string
	RequestID     int64
	Switches      map[int]struct{}
	// Extra holds service-defined keys not otherwise modeled; all values
	// are treated as opaque strings by the core.
	Extra map[string]string
}

// NewContext returns a Context with an empty switch set and extras map,
// ready to be populated by the caller.
func NewContext(correlationID string) Context {
	return Context{
		CorrelationID: correlationID,
		Switches:      make(map[int]struct{}),
		Extra:         make(map[string]string),
	}
}

// WithSwitch returns a copy of c with switch sw added to its switch set.
func (c Context) WithSwitch(sw int) Context {
	out := c.clone()
	out.Switches[sw] = struct{}{}
	return out
}

// HasSwitch reports whether sw is present in the context's switch set.
func (c Context) HasSwitch(sw int) bool {
	_, ok := c.Switches[sw]
	return ok
}

// UnionSwitches returns a copy of c whose switch set is the union of c's
// switches and other.
func (c Context) UnionSwitches(other map[int]struct{}) Context {
	out := c.clone()
	for sw := range other {
		out.Switches[sw] = struct{}{}
	}
	return out
}

func (c Context) clone() Context {
	out := Context{CorrelationID: c.CorrelationID, RequestID: c.RequestID}
	out.Switches = make(map[int]struct{}, len(c.Switches))
	for sw := range c.Switches {
		out.Switches[sw] = struct{}{}
	}
	out.Extra = make(map[string]string, len(c.Extra))
	for k, v := range c.Extra {
		out.Extra[k] = v
	}
	return out
}

// Control carries per-job execution flags.
type Control struct {
	ContinueOnError  bool
	SuppressResponse bool
	// Timeout is the caller's requested deadline for the whole job, in
	// seconds. Zero means "use the caller's default".
	Timeout float64
}

// JobRequest is an ordered group of actions sent together to one service.
type JobRequest struct {
	Actions []ActionRequest
	Context Context
	Control Control
}

// JobResponse mirrors the shape of the JobRequest it answers: same length
// and order of Actions unless dispatch stopped early (a job-level error, or
// an action error without ContinueOnError).
type JobResponse struct {
	Actions []ActionResponse
	Context Context
	Errors  []Error
}

// HasErrors reports whether the job-level Errors slice is non-empty.
func (r JobResponse) HasErrors() bool {
	return len(r.Errors) > 0
}
