package service

import "fotobox/eventhub/internal/model"

// Actor is the authenticated caller of an operation.
type Actor struct {
	HostID uint
	Role   model.Role
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// CanManage reports whether the actor may change or delete the event.
func (a Actor) CanManage(e *model.Event) bool {
	return a.IsAdmin() || (a.HostID != 0 && e.HostID == a.HostID)
}
