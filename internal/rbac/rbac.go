package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionPreview Action = "preview"
	ActionEdit    Action = "edit"
	ActionPublish Action = "publish"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionPreview || action == ActionEdit || action == ActionPublish
	case RoleViewer:
		return action == ActionRead || action == ActionPreview
	default:
		return false
	}
}

// Normalize maps a role string to a Role. Unknown or empty roles grant
// nothing, so membership is never implied.
func Normalize(role string) (Role, bool) {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role), true
	default:
		return "", false
	}
}
