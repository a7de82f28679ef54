package client

import (
	"context"
	"fmt"

	"github.com/dermesser/brokerpc"
)

// ExpansionRoute names the batch action a client calls to resolve a
// group of ids into full objects (spec §4.5).
type ExpansionRoute struct {
	Service       string
	Action        string
	RequestField  string // request body field carrying the collected ids
	ResponseField string // response body field: a map keyed by id (as string)
	// RaiseActionErrors overrides the default of suppressing action
	// errors raised by this specific route.
	RaiseActionErrors bool
}

// ExpansionType describes how one object type is expanded: SourceField
// holds the id to resolve, DestinationField receives the resolved
// object.
type ExpansionType struct {
	SourceField      string
	DestinationField string
	Route            ExpansionRoute
}

// ExpansionRegistry maps object "_type" to the named expansions
// available for it.
type ExpansionRegistry map[string]map[string]ExpansionType

// ExpansionRequest selects one (type, name) pair to resolve.
type ExpansionRequest struct {
	Type string
	Name string
}

const defaultExpansionMaxDepth = 8

// Expand walks resp's action bodies for objects carrying a "_type" key
// matching a requested expansion, resolves them via the configured
// route, and splices the results into each object's DestinationField.
// Expansion is recursive up to maxDepth (<=0 uses a safe default) to
// bound cycles among self-referential types.
func (c *Client) Expand(ctx context.Context, jctx brokerpc.Context, resp *brokerpc.JobResponse, registry ExpansionRegistry, requested []ExpansionRequest, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = defaultExpansionMaxDepth
	}
	roots := make([]map[string]interface{}, 0, len(resp.Actions))
	for i := range resp.Actions {
		if resp.Actions[i].Body != nil {
			roots = append(roots, resp.Actions[i].Body)
		}
	}
	visited := map[string]struct{}{}
	return c.expandLevel(ctx, jctx, roots, registry, requested, visited, 0, maxDepth)
}

func (c *Client) expandLevel(ctx context.Context, jctx brokerpc.Context, nodes []map[string]interface{}, registry ExpansionRegistry, requested []ExpansionRequest, visited map[string]struct{}, depth, maxDepth int) error {
	if depth >= maxDepth || len(nodes) == 0 {
		return nil
	}

	var nextLevel []map[string]interface{}

	type splice struct {
		objs  []map[string]interface{}
		field string
		value interface{}
	}
	var pending []splice

	for _, req := range requested {
		typeConfigs, ok := registry[req.Type]
		if !ok {
			continue
		}
		cfg, ok := typeConfigs[req.Name]
		if !ok {
			continue
		}

		idToObjs := map[string][]map[string]interface{}{}
		var ids []interface{}
		for _, root := range nodes {
			walkObjects(root, func(obj map[string]interface{}) {
				t, _ := obj["_type"].(string)
				if t != req.Type {
					return
				}
				idVal, ok := obj[cfg.SourceField]
				if !ok {
					return
				}
				key := fmt.Sprint(idVal)
				visitKey := req.Type + "\x00" + key
				if _, done := visited[visitKey]; done {
					return
				}
				if _, seen := idToObjs[key]; !seen {
					ids = append(ids, idVal)
				}
				idToObjs[key] = append(idToObjs[key], obj)
			})
		}
		if len(ids) == 0 {
			continue
		}
		for key := range idToObjs {
			visited[req.Type+"\x00"+key] = struct{}{}
		}

		body := map[string]interface{}{cfg.Route.RequestField: ids}
		actionResp, err := c.callExpansionRoute(ctx, jctx, cfg.Route, body)
		if err != nil {
			return &ExpansionError{Route: cfg.Route.Service + "." + cfg.Route.Action, Cause: err}
		}

		resultsMap, _ := actionResp.Body[cfg.Route.ResponseField].(map[string]interface{})
		for key, objs := range idToObjs {
			spliced, ok := resultsMap[key]
			if !ok {
				continue
			}
			pending = append(pending, splice{objs: objs, field: cfg.DestinationField, value: spliced})
			if splicedObj, ok := spliced.(map[string]interface{}); ok {
				nextLevel = append(nextLevel, splicedObj)
			}
		}
	}

	// Splice only after every request has walked this level's nodes, so an
	// object resolved at this depth is not expanded again at the same depth.
	for _, p := range pending {
		for _, obj := range p.objs {
			obj[p.field] = p.value
		}
	}

	return c.expandLevel(ctx, jctx, nextLevel, registry, requested, visited, depth+1, maxDepth)
}

// callExpansionRoute calls an expansion route with the client-level
// raise_job_errors/raise_action_errors settings bypassed: action errors
// are suppressed unless the route opts in, but transport errors always
// propagate (spec §4.5).
func (c *Client) callExpansionRoute(ctx context.Context, jctx brokerpc.Context, route ExpansionRoute, body map[string]interface{}) (brokerpc.ActionResponse, error) {
	jr := brokerpc.JobRequest{
		Actions: []brokerpc.ActionRequest{{Action: route.Action, Body: body}},
		Context: jctx,
	}
	resp, err := c.sendAndAwait(ctx, route.Service, jr, c.defaultTimeout)
	if err != nil {
		return brokerpc.ActionResponse{}, err
	}
	if len(resp.Actions) == 0 {
		return brokerpc.ActionResponse{}, fmt.Errorf("expansion route %s.%s returned no action response", route.Service, route.Action)
	}
	ar := resp.Actions[0]
	if len(ar.Errors) > 0 && route.RaiseActionErrors {
		return ar, &CallActionError{Actions: resp.Actions}
	}
	return ar, nil
}

// walkObjects visits every nested map carrying a "_type" key, depth
// first, including maps found inside lists.
func walkObjects(node interface{}, visit func(obj map[string]interface{})) {
	switch v := node.(type) {
	case map[string]interface{}:
		if _, ok := v["_type"]; ok {
			visit(v)
		}
		for _, val := range v {
			walkObjects(val, visit)
		}
	case []interface{}:
		for _, item := range v {
			walkObjects(item, visit)
		}
	}
}
