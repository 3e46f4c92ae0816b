package domain

// Role names with pipeline-relevant behavior.
const (
	RoleAdmin        = "admin"
	RoleManager      = "manager"
	RolePlanner      = "planner"
	RoleFieldManager = "field_manager"
)

// restrictedRoles may not see or set farm profile columns: their
// uploads have farm address, location, image and plot stripped, and
// farms they introduce are created by name only.
var restrictedRoles = map[string]struct{}{
	RolePlanner:      {},
	RoleFieldManager: {},
}

// IsRestrictedRole reports whether any of the given roles is
// farm-column restricted.
func IsRestrictedRole(roles []string) bool {
	for _, r := range roles {
		if _, ok := restrictedRoles[r]; ok {
			return true
		}
	}
	return false
}

// RedactForRole returns a projection of the record appropriate for the
// given roles. Restricted roles lose the farm profile columns; other
// roles see the record unchanged. The input is never mutated.
func RedactForRole(record RawRecord, roles []string) RawRecord {
	if !IsRestrictedRole(roles) {
		return record
	}
	out := record.Clone()
	delete(out, FieldFarmAddress)
	delete(out, FieldFarmLocation)
	delete(out, FieldFarmImage)
	delete(out, FieldPlot)
	return out
}

// Resource names recorded in event-log entries, one per entity kind.
const (
	ResourceUsers     = "users"
	ResourceFarms     = "farms"
	ResourceCrops     = "crops"
	ResourceTasks     = "tasks"
	ResourceFarmTasks = "farms-tasks"
	ResourceFarmCrops = "farms-crops"
)
