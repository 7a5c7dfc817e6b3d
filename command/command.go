// Package command implements the Command Engine (§4.3): load an
// aggregate's write-model by event replay, authorize and validate, produce
// events, and append them under optimistic concurrency.
package command

// Editor identifies who or what is submitting a command: either a human
// user, a service account, or both blank for system-initiated commands.
// Role is the grant the authz.Policy checks against, if a Policy is wired
// into the Engine.
type Editor struct {
	UserID    string
	ServiceID string
	Role      string
}

// Command carries an intent to change one aggregate's state (§4.3).
type Command struct {
	CommandID     string
	InstanceID    string
	AggregateType string
	AggregateID   string
	// ResourceOwner is the owning org/tenant of the aggregate; it may
	// differ from InstanceID (the outer tenant boundary) for
	// org-scoped aggregates. Defaults to InstanceID if left blank.
	ResourceOwner string
	Editor        Editor
	// Action is the authz.Policy action name checked against Editor.Role
	// before the handler runs, if an Engine has a Policy configured.
	// Left blank to skip the authorize step (e.g. for system commands).
	Action string
	// Payload is the command-specific input the Handler decodes.
	Payload interface{}
}
