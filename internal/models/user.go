package models

import "time"

type User struct {
	ID        int64     `json:"id" db:"id" yaml:"id"`
	Name      string    `json:"name" db:"name" yaml:"name"`
	Email     string    `json:"email" db:"email" yaml:"email"`
	Role      string    `json:"role" db:"role" yaml:"role"` // student, staff, admin
	CreatedAt time.Time `json:"created_at" db:"created_at" yaml:"-"`
}

// IsModerator reports whether the user may moderate bookings on any resource.
func (u *User) IsModerator() bool {
	return u.Role == RoleStaff || u.Role == RoleAdmin
}

// CanModerate reports whether the user may approve or reject bookings of the resource.
func (u *User) CanModerate(r *Resource) bool {
	return u.IsModerator() || r.IsOwnedBy(u.ID)
}
