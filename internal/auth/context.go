package auth

import "context"

type ctxKey string

const (
	ctxActorKey ctxKey = "actor"
	ctxRoleKey  ctxKey = "role"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleViewer Role = "viewer"
	RoleSystem Role = "system"
)

// SystemActor is recorded on changes made by background integrations.
const SystemActor = "system"

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxActorKey, actor)
}

// ActorFromContext returns the acting user id, or SystemActor when the
// context carries none.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxActorKey).(string); ok && v != "" {
		return v
	}
	return SystemActor
}

func WithRole(ctx context.Context, r Role) context.Context {
	return context.WithValue(ctx, ctxRoleKey, r)
}

func RoleFromContext(ctx context.Context) (Role, bool) {
	v, ok := ctx.Value(ctxRoleKey).(Role)
	return v, ok
}

// CanWrite reports whether the role may mutate data.
func (r Role) CanWrite() bool {
	return r == RoleAdmin || r == RoleStaff || r == RoleSystem
}
