// Package policy decides whether an authenticated actor may perform an action
// on a resource. It is pure: callers look up ownership facts (membership,
// creatorship) and pass them in.
package policy

import "github.com/blinkportal/backend/internal/model"

type Actor struct {
	ID   uint
	Role model.Role
}

func ActorOf(u *model.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

type Resource string

const (
	Project   Resource = "project"
	Recording Resource = "recording"
	File      Resource = "file"
	Slot      Resource = "slot"
	Booking   Resource = "booking"
	Request   Resource = "request"
	User      Resource = "user"
)

type Action string

const (
	Read         Action = "read"
	Create       Action = "create"
	Update       Action = "update"
	UpdateStatus Action = "update_status"
	Delete       Action = "delete"
	Download     Action = "download"
	Cancel       Action = "cancel"
	AddMessage   Action = "add_message"
	ListMessages Action = "list_messages"
)

// Facts are the ownership relations between the actor and the resource instance.
// Member: the actor belongs to the owning (or target) project.
// Owner: the actor created the resource.
type Facts struct {
	Member bool
	Owner  bool
}

type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) Allowed() bool { return bool(d) }

func Decide(a Actor, r Resource, act Action, f Facts) Decision {
	switch a.Role {
	case model.RoleAdmin:
		return Allow
	case model.RoleClient:
		return decideClient(r, act, f)
	}
	return Deny
}

func decideClient(r Resource, act Action, f Facts) Decision {
	switch r {
	case Project:
		return Decision(act == Read && f.Member)
	case Recording, File:
		return Decision((act == Read || act == Download) && f.Member)
	case Request:
		switch act {
		case Create:
			return Decision(f.Member)
		case Read, Update, Delete, AddMessage, ListMessages:
			return Decision(f.Owner)
		}
	case Booking:
		switch act {
		case Create:
			return Allow
		case Read, Cancel:
			return Decision(f.Owner)
		}
	case Slot:
		return Decision(act == Read)
	}
	return Deny
}

// Scope is the row restriction a list query applies for an actor.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeAll
	ScopeMemberProjects // rows whose project has the actor as member
	ScopeOwned          // rows created by the actor
)

func ListScope(a Actor, r Resource) Scope {
	switch a.Role {
	case model.RoleAdmin:
		return ScopeAll
	case model.RoleClient:
		switch r {
		case Project, Recording, File:
			return ScopeMemberProjects
		case Request, Booking:
			return ScopeOwned
		case Slot:
			return ScopeAll
		}
	}
	return ScopeNone
}
