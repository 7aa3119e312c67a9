package tools

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

// pick returns the first truthy value among keys, matching how Core versions
// rename fields between releases.
func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if truthy(m[k]) {
			return m[k]
		}
	}
	return nil
}

// present returns the first non-null value among keys. Use it where zero is
// a meaningful value, such as ids.
func present(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func toInt(v any) int64 {
	n, _ := backend.AsInt64(v)
	return n
}

func toIntOrNil(v any) any {
	if v == nil {
		return nil
	}
	if n, ok := backend.AsInt64(v); ok {
		return n
	}
	return nil
}

func toBool(v any) bool {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes", "y":
			return true
		}
		return false
	}
	return truthy(v)
}

func (s *toolset) nodeStatus(ctx context.Context, _ Args) any {
	raw, err := s.api.NodeStatus(ctx)
	if err != nil {
		return failure(err, "retrieving node status")
	}
	return map[string]any{
		"height":              toInt(pick(raw, "height", "chainHeight")),
		"isSynchronizing":     toBool(pick(raw, "isSynchronizing", "isSynchronising", "syncing")),
		"syncPercent":         toIntOrNil(raw["syncPercent"]),
		"isMintingPossible":   toBool(pick(raw, "isMintingPossible", "mintingPossible")),
		"numberOfConnections": toInt(pick(raw, "numberOfConnections", "connections")),
	}
}

func (s *toolset) nodeInfo(ctx context.Context, _ Args) any {
	raw, err := s.api.NodeInfo(ctx)
	if err != nil {
		return failure(err, "retrieving node info")
	}
	return map[string]any{
		"buildVersion":   raw["buildVersion"],
		"buildTimestamp": toIntOrNil(raw["buildTimestamp"]),
		"nodeId":         raw["nodeId"],
		"uptime":         toIntOrNil(raw["uptime"]),
		"currentTime":    toIntOrNil(raw["currentTimestamp"]),
	}
}

func (s *toolset) nodeSummary(ctx context.Context, _ Args) any {
	raw, err := s.api.NodeSummary(ctx)
	if err != nil {
		return failure(err, "retrieving node summary")
	}
	return raw
}

func (s *toolset) nodeUptime(ctx context.Context, _ Args) any {
	raw, err := s.api.NodeUptime(ctx)
	if err != nil {
		return failure(err, "retrieving node uptime")
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return unexpectedShape()
	}
	return map[string]any{"uptime": ms}
}

func (s *toolset) blockHeight(ctx context.Context, _ Args) any {
	h, err := s.api.BlockHeight(ctx)
	if err != nil {
		return failure(err, "retrieving block height")
	}
	return map[string]any{"height": h}
}
