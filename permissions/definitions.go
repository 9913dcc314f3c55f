package permissions

// PermissionDefinition describes a single, specific permission
type PermissionDefinition struct {
	Key         string `json:"key"`         // unique key, e.g., "person:read"
	Name        string `json:"name"`        // friendly name, e.g., "View People"
	Description string `json:"description"` // detailed description of what the permission allows
}

// PermissionGroupDefinition groups related permissions
type PermissionGroupDefinition struct {
	Key         string                 `json:"key"`         // unique key for the group, e.g., "person"
	Name        string                 `json:"name"`        // friendly name for the group
	Description string                 `json:"description"` // detailed description of the permission group
	Permissions []PermissionDefinition `json:"permissions"` // list of permissions within this group
}

// DefinedPermissionGroups holds all statically defined permission groups and
// their permissions. API keys may also carry category wildcards ("person:*"),
// "admin", or "*".
var DefinedPermissionGroups = []PermissionGroupDefinition{
	{
		Key:         "person",
		Name:        "Person Management",
		Description: "Permissions related to managing registered people and their faces.",
		Permissions: []PermissionDefinition{
			{
				Key:         "person:read",
				Name:        "View People",
				Description: "Allows listing registered people and viewing their profiles.",
			},
			{
				Key:         "person:write",
				Name:        "Manage People",
				Description: "Allows registering, updating, and deleting people and their face encodings.",
			},
		},
	},
	{
		Key:         "attendance",
		Name:        "Attendance",
		Description: "Permissions related to attendance records.",
		Permissions: []PermissionDefinition{
			{
				Key:         "attendance:read",
				Name:        "View Attendance",
				Description: "Allows viewing attendance records, daily summaries, and detection events.",
			},
			{
				Key:         "attendance:write",
				Name:        "Record Attendance",
				Description: "Allows manual check-in and check-out operations.",
			},
		},
	},
	{
		Key:         "reports",
		Name:        "Reports",
		Description: "Permissions related to aggregated attendance reporting.",
		Permissions: []PermissionDefinition{
			{
				Key:         "reports:read",
				Name:        "View Reports",
				Description: "Allows running per-person and range reports and exporting records.",
			},
		},
	},
	{
		Key:         "config",
		Name:        "Configuration",
		Description: "Permissions related to runtime configuration stored in the database.",
		Permissions: []PermissionDefinition{
			{
				Key:         "config:read",
				Name:        "View Configuration",
				Description: "Allows reading runtime configuration values.",
			},
			{
				Key:         "config:write",
				Name:        "Edit Configuration",
				Description: "Allows changing runtime configuration values.",
			},
		},
	},
	{
		Key:         "logs",
		Name:        "System Logs",
		Description: "Permissions related to the persistent system log.",
		Permissions: []PermissionDefinition{
			{
				Key:         "logs:read",
				Name:        "View Logs",
				Description: "Allows reading system log entries.",
			},
		},
	},
	{
		Key:         "system",
		Name:        "System Control",
		Description: "Permissions related to controlling the processing pipeline.",
		Permissions: []PermissionDefinition{
			{
				Key:         "system:control",
				Name:        "Control Processing",
				Description: "Allows starting and stopping video sources and viewing the live stream.",
			},
			{
				Key:         "system:keys",
				Name:        "Manage API Keys",
				Description: "Allows issuing, listing, and revoking API keys.",
			},
		},
	},
	{
		Key:         "sync",
		Name:        "Synchronization",
		Description: "Permissions reserved for the upstream synchronization surface.",
		Permissions: []PermissionDefinition{
			{
				Key:         "sync:push",
				Name:        "Push Sync",
				Description: "Reserved for pushing records to an upstream system.",
			},
			{
				Key:         "sync:pull",
				Name:        "Pull Sync",
				Description: "Reserved for pulling records from an upstream system.",
			},
		},
	},
}

var (
	allPermissionKeysMap map[string]PermissionDefinition
	allPermissionKeys    []string
)

func init() {
	allPermissionKeysMap = make(map[string]PermissionDefinition)
	for _, group := range DefinedPermissionGroups {
		for _, perm := range group.Permissions {
			allPermissionKeysMap[perm.Key] = perm
			allPermissionKeys = append(allPermissionKeys, perm.Key)
		}
	}
}

// GetAllPermissionDefinitions returns a map of all defined permissions, keyed by their unique string key
func GetAllPermissionDefinitions() map[string]PermissionDefinition {
	return allPermissionKeysMap
}

// GetAllPermissionKeys returns a slice of all unique permission string keys
func GetAllPermissionKeys() []string {
	// return a copy to prevent modification of the internal slice
	keys := make([]string, len(allPermissionKeys))
	copy(keys, allPermissionKeys)
	return keys
}

// IsValidPermissionKey checks if a given permission key is defined or is one
// of the wildcard grants accepted on API keys
func IsValidPermissionKey(key string) bool {
	if key == "*" || key == "admin" {
		return true
	}
	if _, ok := allPermissionKeysMap[key]; ok {
		return true
	}
	for _, group := range DefinedPermissionGroups {
		if key == group.Key+":*" {
			return true
		}
	}
	return false
}

// GetPermissionDefinition retrieves a specific permission definition by its key.
// Returns the definition and true if found, otherwise an empty definition and false.
func GetPermissionDefinition(key string) (PermissionDefinition, bool) {
	def, ok := allPermissionKeysMap[key]
	return def, ok
}
