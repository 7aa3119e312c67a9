package tools

import (
	"context"
	"errors"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

const msgInvalidGroupID = "Invalid group id."

func (s *toolset) normalizeGroup(raw map[string]any) map[string]any {
	out := map[string]any{
		"id":                toIntOrNil(present(raw, "groupId", "id")),
		"name":              pick(raw, "groupName", "name"),
		"owner":             raw["owner"],
		"description":       truncateAny(raw["description"], s.limits.MaxNameDataPreview),
		"created":           toIntOrNil(raw["created"]),
		"updated":           toIntOrNil(raw["updated"]),
		"isOpen":            toBool(raw["isOpen"]),
		"approvalThreshold": raw["approvalThreshold"],
		"minimumBlockDelay": toIntOrNil(raw["minimumBlockDelay"]),
		"maximumBlockDelay": toIntOrNil(raw["maximumBlockDelay"]),
		"memberCount":       toIntOrNil(raw["memberCount"]),
	}
	if v, ok := raw["isAdmin"]; ok {
		out["isAdmin"] = toBool(v)
	}
	return out
}

func (s *toolset) groupList(raw any) any {
	list, ok := raw.([]any)
	if !ok {
		return unexpectedShape()
	}
	out := make([]map[string]any, 0, min(len(list), s.limits.MaxGroups))
	for _, item := range list {
		if len(out) == s.limits.MaxGroups {
			break
		}
		if m, ok := item.(map[string]any); ok {
			out = append(out, s.normalizeGroup(m))
		}
	}
	return out
}

func groupIDArg(args Args) (int64, bool) {
	id, ok, err := args.Int("group_id")
	if !ok || err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func groupFailure(err error, doing string) map[string]any {
	if errors.Is(err, backend.ErrGroupNotFound) {
		return errorResult(backend.MsgGroupNotFound)
	}
	return failure(err, doing)
}

func (s *toolset) listGroups(ctx context.Context, args Args) any {
	limit := ClampLimit(args["limit"], s.limits.MaxGroups, s.limits.MaxGroups)
	offset := ClampLimit(args["offset"], 0, s.limits.MaxGroups)
	page, err := args.page(limit, offset, "reverse")
	if err != nil {
		return errorResult(err.Error())
	}
	raw, err := s.api.Groups(ctx, page)
	if err != nil {
		return failure(err, "listing groups")
	}
	return s.groupList(raw)
}

func (s *toolset) group(ctx context.Context, args Args) any {
	id, ok := groupIDArg(args)
	if !ok {
		return errorResult(msgInvalidGroupID)
	}
	raw, err := s.api.Group(ctx, id)
	if err != nil {
		return groupFailure(err, "retrieving group")
	}
	return s.normalizeGroup(raw)
}

func (s *toolset) groupMembers(ctx context.Context, args Args) any {
	id, ok := groupIDArg(args)
	if !ok {
		return errorResult(msgInvalidGroupID)
	}
	onlyAdmins, _, err := args.Bool("only_admins")
	if err != nil {
		return errorResult(err.Error())
	}
	limit := ClampLimit(args["limit"], s.limits.MaxGroups, s.limits.MaxGroups)
	offset := ClampLimit(args["offset"], 0, s.limits.MaxGroups)
	page, err := args.page(limit, offset, "reverse")
	if err != nil {
		return errorResult(err.Error())
	}

	raw, err := s.api.GroupMembers(ctx, id, onlyAdmins, page)
	if err != nil {
		return groupFailure(err, "retrieving group members")
	}
	list, _ := raw["members"].([]any)
	members := make([]map[string]any, 0, min(len(list), limit))
	for _, item := range list {
		if len(members) == limit {
			break
		}
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		members = append(members, map[string]any{
			"member":  m["member"],
			"joined":  toIntOrNil(m["joined"]),
			"isAdmin": toBool(m["isAdmin"]),
		})
	}
	return map[string]any{
		"groupId":     id,
		"memberCount": toInt(raw["memberCount"]),
		"adminCount":  toInt(raw["adminCount"]),
		"members":     members,
	}
}

func (s *toolset) groupsByAddress(ctx context.Context, args Args, owner bool) any {
	address := args.String("address")
	if !IsValidAddress(address) {
		return errorResult(backend.MsgInvalidAddress)
	}
	var (
		raw any
		err error
	)
	if owner {
		raw, err = s.api.GroupsByOwner(ctx, address)
	} else {
		raw, err = s.api.GroupsByMember(ctx, address)
	}
	if err != nil {
		return failure(err, "retrieving groups")
	}
	return s.groupList(raw)
}

func (s *toolset) groupsByOwner(ctx context.Context, args Args) any {
	return s.groupsByAddress(ctx, args, true)
}

func (s *toolset) groupsByMember(ctx context.Context, args Args) any {
	return s.groupsByAddress(ctx, args, false)
}
