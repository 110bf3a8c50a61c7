// Package routing defines the command categories, providers, agent roles
// and interaction records that drive provider selection.
package routing

// Category is a classification bucket for an input. It is used both as the
// provider-routing key and, through AgentRole, as the context key for task
// steps.
type Category string

const (
	CategoryCreative      Category = "creative"
	CategoryStrategic     Category = "strategic"
	CategoryInformational Category = "informational"
	CategoryEmotional     Category = "emotional"
	CategoryTechnical     Category = "technical"
	CategoryVoice         Category = "voice"
)

// DefaultCategory is returned by the classifier when no keyword matches or
// the top score is tied.
const DefaultCategory = CategoryInformational

// Categories lists every category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryCreative,
		CategoryStrategic,
		CategoryInformational,
		CategoryEmotional,
		CategoryTechnical,
		CategoryVoice,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCreative, CategoryStrategic, CategoryInformational,
		CategoryEmotional, CategoryTechnical, CategoryVoice:
		return true
	}
	return false
}

// AgentRole is a named responsibility bound to a task step. Each role maps
// onto a routing category, so a step's invocation reuses the same adaptive
// routing as a direct request.
type AgentRole string

const (
	RoleCoordinator  AgentRole = "coordinator"
	RolePlanner      AgentRole = "planner"
	RoleResearcher   AgentRole = "researcher"
	RoleAnalyst      AgentRole = "analyst"
	RoleAdvisor      AgentRole = "advisor"
	RoleCommunicator AgentRole = "communicator"
)

// ClosingRole evaluates results and decides whether a task is done.
const ClosingRole = RoleCoordinator

// PlanningRole decomposes work into ordered steps.
const PlanningRole = RolePlanner

// roleCategories maps each agent role to its routing category.
var roleCategories = map[AgentRole]Category{
	RoleCoordinator:  CategoryStrategic,
	RolePlanner:      CategoryStrategic,
	RoleResearcher:   CategoryInformational,
	RoleAnalyst:      CategoryTechnical,
	RoleAdvisor:      CategoryEmotional,
	RoleCommunicator: CategoryCreative,
}

// Category returns the routing category for the role. Unknown roles route
// through the default category.
func (r AgentRole) Category() Category {
	if c, ok := roleCategories[r]; ok {
		return c
	}
	return DefaultCategory
}

// Valid reports whether r is a known agent role.
func (r AgentRole) Valid() bool {
	_, ok := roleCategories[r]
	return ok
}

// Roles lists every agent role in a stable order.
func Roles() []AgentRole {
	return []AgentRole{
		RoleCoordinator,
		RolePlanner,
		RoleResearcher,
		RoleAnalyst,
		RoleAdvisor,
		RoleCommunicator,
	}
}
