package brokerpc

// This file converts the typed data model in types.go to and from the
// nested map[string]interface{} shape a serializer.Serializer knows how
// to encode, so that both the client and server engines share one
// definition of "what a job looks like on the wire".

func encodeError(e Error) map[string]interface{} {
	m := map[string]interface{}{
		"code":            e.Code,
		"message":         e.Message,
		"is_caller_error": e.IsCallerError,
	}
	if e.Field != "" {
		m["field"] = e.Field
	}
	if e.Traceback != "" {
		m["traceback"] = e.Traceback
	}
	if len(e.Variables) > 0 {
		vars := make(map[string]interface{}, len(e.Variables))
		for k, v := range e.Variables {
			vars[k] = v
		}
		m["variables"] = vars
	}
	if len(e.DeniedPermissions) > 0 {
		perms := make([]interface{}, len(e.DeniedPermissions))
		for i, p := range e.DeniedPermissions {
			perms[i] = p
		}
		m["denied_permissions"] = perms
	}
	return m
}

func decodeError(v interface{}) Error {
	m, _ := v.(map[string]interface{})
	e := Error{}
	e.Code, _ = m["code"].(string)
	e.Message, _ = m["message"].(string)
	e.Field, _ = m["field"].(string)
	e.Traceback, _ = m["traceback"].(string)
	e.IsCallerError, _ = m["is_caller_error"].(bool)
	if vars, ok := m["variables"].(map[string]interface{}); ok {
		e.Variables = make(map[string]string, len(vars))
		for k, v := range vars {
			if s, ok := v.(string); ok {
				e.Variables[k] = s
			}
		}
	}
	if perms, ok := m["denied_permissions"].([]interface{}); ok {
		e.DeniedPermissions = make([]string, 0, len(perms))
		for _, p := range perms {
			if s, ok := p.(string); ok {
				e.DeniedPermissions = append(e.DeniedPermissions, s)
			}
		}
	}
	return e
}

func encodeErrors(errs []Error) []interface{} {
	out := make([]interface{}, len(errs))
	for i, e := range errs {
		out[i] = encodeError(e)
	}
	return out
}

func decodeErrors(v interface{}) []Error {
	list, _ := v.([]interface{})
	out := make([]Error, 0, len(list))
	for _, e := range list {
		out = append(out, decodeError(e))
	}
	return out
}

func encodeContext(c Context) map[string]interface{} {
	switches := make([]interface{}, 0, len(c.Switches))
	for sw := range c.Switches {
		switches = append(switches, int64(sw))
	}
	extra := make(map[string]interface{}, len(c.Extra))
	for k, v := range c.Extra {
		extra[k] = v
	}
	return map[string]interface{}{
		"correlation_id": c.CorrelationID,
		"request_id":     c.RequestID,
		"switches":       switches,
		"extra":          extra,
	}
}

func decodeContext(v interface{}) Context {
	m, _ := v.(map[string]interface{})
	c := NewContext("")
	c.CorrelationID, _ = m["correlation_id"].(string)
	switch rid := m["request_id"].(type) {
	case int64:
		c.RequestID = rid
	case float64:
		c.RequestID = int64(rid)
	}
	if switches, ok := m["switches"].([]interface{}); ok {
		for _, sw := range switches {
			switch n := sw.(type) {
			case int64:
				c.Switches[int(n)] = struct{}{}
			case float64:
				c.Switches[int(n)] = struct{}{}
			}
		}
	}
	if extra, ok := m["extra"].(map[string]interface{}); ok {
		for k, v := range extra {
			if s, ok := v.(string); ok {
				c.Extra[k] = s
			}
		}
	}
	return c
}

func encodeControl(c Control) map[string]interface{} {
	return map[string]interface{}{
		"continue_on_error": c.ContinueOnError,
		"suppress_response": c.SuppressResponse,
		"timeout":           c.Timeout,
	}
}

func decodeControl(v interface{}) Control {
	m, _ := v.(map[string]interface{})
	c := Control{}
	c.ContinueOnError, _ = m["continue_on_error"].(bool)
	c.SuppressResponse, _ = m["suppress_response"].(bool)
	switch t := m["timeout"].(type) {
	case float64:
		c.Timeout = t
	case int64:
		c.Timeout = float64(t)
	}
	return c
}

func encodeActionRequest(a ActionRequest) map[string]interface{} {
	return map[string]interface{}{
		"action": a.Action,
		"body":   a.Body,
	}
}

func decodeActionRequest(v interface{}) ActionRequest {
	m, _ := v.(map[string]interface{})
	a := ActionRequest{}
	a.Action, _ = m["action"].(string)
	if body, ok := m["body"].(map[string]interface{}); ok {
		a.Body = body
	} else {
		a.Body = map[string]interface{}{}
	}
	return a
}

func encodeActionResponse(a ActionResponse) map[string]interface{} {
	m := map[string]interface{}{"action": a.Action}
	if a.Body != nil {
		m["body"] = a.Body
	}
	if len(a.Errors) > 0 {
		m["errors"] = encodeErrors(a.Errors)
	}
	return m
}

func decodeActionResponse(v interface{}) ActionResponse {
	m, _ := v.(map[string]interface{})
	a := ActionResponse{}
	a.Action, _ = m["action"].(string)
	if body, ok := m["body"].(map[string]interface{}); ok {
		a.Body = body
	}
	if errs, ok := m["errors"]; ok {
		a.Errors = decodeErrors(errs)
	}
	return a
}

// EncodeJobRequest converts jr into the map an envelope body carries.
func EncodeJobRequest(jr JobRequest) map[string]interface{} {
	actions := make([]interface{}, len(jr.Actions))
	for i, a := range jr.Actions {
		actions[i] = encodeActionRequest(a)
	}
	return map[string]interface{}{
		"actions": actions,
		"context": encodeContext(jr.Context),
		"control": encodeControl(jr.Control),
	}
}

// DecodeJobRequest is the inverse of EncodeJobRequest.
func DecodeJobRequest(body map[string]interface{}) JobRequest {
	jr := JobRequest{}
	if actions, ok := body["actions"].([]interface{}); ok {
		jr.Actions = make([]ActionRequest, len(actions))
		for i, a := range actions {
			jr.Actions[i] = decodeActionRequest(a)
		}
	}
	jr.Context = decodeContext(body["context"])
	jr.Control = decodeControl(body["control"])
	return jr
}

// EncodeJobResponse converts jr into the map an envelope body carries.
func EncodeJobResponse(jr JobResponse) map[string]interface{} {
	actions := make([]interface{}, len(jr.Actions))
	for i, a := range jr.Actions {
		actions[i] = encodeActionResponse(a)
	}
	m := map[string]interface{}{
		"actions": actions,
		"context": encodeContext(jr.Context),
	}
	if len(jr.Errors) > 0 {
		m["errors"] = encodeErrors(jr.Errors)
	}
	return m
}

// DecodeJobResponse is the inverse of EncodeJobResponse.
func DecodeJobResponse(body map[string]interface{}) JobResponse {
	jr := JobResponse{}
	if actions, ok := body["actions"].([]interface{}); ok {
		jr.Actions = make([]ActionResponse, len(actions))
		for i, a := range actions {
			jr.Actions[i] = decodeActionResponse(a)
		}
	}
	jr.Context = decodeContext(body["context"])
	if errs, ok := body["errors"]; ok {
		jr.Errors = decodeErrors(errs)
	}
	return jr
}
