package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"quiz:status",
		"certificate:view-own",
		"user:change_password",
	},
	"teacher": {
		"attempt:view-all",
		"quiz:status",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
