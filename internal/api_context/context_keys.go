package api_context

import (
	"context"
	"strconv"
)

type ctxKey string

const (
	IDKey         ctxKey = "id"
	ChannelIDKey  ctxKey = "channelID"
	AuthUserIDKey ctxKey = "authUserID"
	AuthRolesKey  ctxKey = "authRoles"
)

func IDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(IDKey).(int64)
	return id, ok
}

func ChannelIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ChannelIDKey).(int64)
	return id, ok
}

func AuthUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AuthUserIDKey).(string)
	return id, ok && id != ""
}

// AuthUserNumericIDFromContext returns the authenticated subject when it is a
// user id. Service tokens have no numeric subject.
func AuthUserNumericIDFromContext(ctx context.Context) (int64, bool) {
	raw, ok := AuthUserIDFromContext(ctx)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

func AuthRolesFromContext(ctx context.Context) ([]string, bool) {
	roles, ok := ctx.Value(AuthRolesKey).([]string)
	return roles, ok
}
