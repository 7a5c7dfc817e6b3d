// Package authz provides the small role-based grant check the Command
// Engine uses in its "authorize" step (§4.3 step 2: "editor has required
// grants"). It is adapted from the teacher's pol package, generalized from
// bare "subject" strings to editor identities and command actions.
package authz

import "github.com/ledgerid/core/ierr"

// Policy allows an editor to execute a command action or returns a
// PreconditionFailed *ierr.Error naming why not.
type Policy interface {
	Allowed(editorRole, action string) error
}

// Rules implements a role-based policy: roles can allow or deny actions
// directly, or inherit from member roles. A role with def=true allows any
// action not explicitly denied; a role with def=false denies any action
// not explicitly allowed.
type Rules struct {
	roles map[string]*role
}

// NewRules returns an empty rule set.
func NewRules() *Rules {
	return &Rules{roles: make(map[string]*role)}
}

// AddRole declares role with the given default allow behavior.
func (p *Rules) AddRole(name string, def bool) *Rules {
	p.role(name).def = def
	return p
}

// AddMember makes role inherit group's allow/deny rules.
func (p *Rules) AddMember(role, group string) *Rules {
	s := p.role(role)
	s.members = append(s.members, p.role(group))
	return p
}

// Allow grants role permission to perform action.
func (p *Rules) Allow(role, action string) *Rules {
	s := p.role(role)
	s.allow = append(s.allow, action)
	return p
}

// Deny denies role permission to perform action, overriding any inherited
// allow.
func (p *Rules) Deny(role, action string) *Rules {
	s := p.role(role)
	s.deny = append(s.deny, action)
	return p
}

func (p *Rules) Allowed(editorRole, action string) error {
	s := p.roles[editorRole]
	if s == nil {
		return ierr.New(ierr.PreconditionFailed, "role "+editorRole+" is unknown").WithEvent(action)
	}
	if s.denied(action) {
		return ierr.New(ierr.PreconditionFailed, "role "+editorRole+" is denied "+action)
	}
	if !s.def && !s.allowed(action) {
		return ierr.New(ierr.PreconditionFailed, "role "+editorRole+" is not allowed "+action)
	}
	return nil
}

func (p *Rules) role(name string) *role {
	s, ok := p.roles[name]
	if !ok {
		s = &role{name: name}
		p.roles[name] = s
	}
	return s
}

type role struct {
	name    string
	def     bool
	allow   []string
	deny    []string
	members []*role
}

func (r *role) allowed(action string) bool {
	for _, a := range r.allow {
		if a == action {
			return true
		}
	}
	for _, m := range r.members {
		if m.allowed(action) {
			return true
		}
	}
	return false
}

func (r *role) denied(action string) bool {
	for _, a := range r.deny {
		if a == action {
			return true
		}
	}
	for _, m := range r.members {
		if m.denied(action) {
			return true
		}
	}
	return false
}
