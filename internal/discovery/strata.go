package discovery

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

const (
	strataDiscover       = "discover_server_categories_or_actions"
	strataCategoryAction = "get_category_actions"
	strataActionDetails  = "get_action_details"
	strataExecute        = "execute_action"
)

// StrataRule drills down tiered integration servers: a discovery result
// listing categories but no actions is followed by a lookup of the actions
// of those categories.
type StrataRule struct{}

func (StrataRule) Inspect(call pub_models.Call, output string) (Decision, bool) {
	switch {
	case matchesRemote(call.Name, strataDiscover):
		categories, actions := scanDiscovery(output)
		if len(categories) == 0 || actions > 0 {
			return Decision{State: Direct}, true
		}
		next := pub_models.Call{
			Name: sibling(call.Name, strataDiscover, strataCategoryAction),
			Inputs: &pub_models.Input{
				"category_names": toAny(categories),
			},
		}
		return Decision{
			State:    NeedsChaining,
			Next:     &next,
			Guidance: fmt.Sprintf("The categories %v have been expanded into their actions.", strings.Join(categories, ", ")),
		}, true
	case matchesRemote(call.Name, strataCategoryAction):
		guidance := fmt.Sprintf("Next, call '%v' for the action you want to use, then '%v' to run it.",
			sibling(call.Name, strataCategoryAction, strataActionDetails),
			sibling(call.Name, strataCategoryAction, strataExecute))
		return Decision{State: Direct, Guidance: guidance}, true
	}
	return Decision{}, false
}

// scanDiscovery returns the category names and the amount of actions found
// anywhere in the output.
func scanDiscovery(output string) ([]string, int) {
	var v any
	if err := json.Unmarshal([]byte(output), &v); err != nil {
		return nil, 0
	}
	var categories []string
	actions := 0
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			// Deterministic category order across servers
			sort.Strings(keys)
			for _, k := range keys {
				child := t[k]
				switch k {
				case "categories":
					categories = append(categories, names(child)...)
				case "actions":
					if list, ok := child.([]any); ok {
						actions += len(list)
					}
				default:
					walk(child)
				}
			}
		case []any:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(v)
	return dedupe(categories), actions
}

func names(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var ret []string
	for _, e := range list {
		switch t := e.(type) {
		case string:
			ret = append(ret, t)
		case map[string]any:
			for _, k := range []string{"name", "category_name", "category"} {
				if s, ok := t[k].(string); ok && s != "" {
					ret = append(ret, s)
					break
				}
			}
		}
	}
	return ret
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	ret := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		ret = append(ret, s)
	}
	return ret
}

func toAny(in []string) []any {
	ret := make([]any, len(in))
	for i, s := range in {
		ret[i] = s
	}
	return ret
}
