package model

import "time"

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleChef     Role = "CHEF"
	RoleAdmin    Role = "ADMIN"
)

// Staff reports whether the role may manage orders, refunds and reviews.
func (r Role) Staff() bool {
	return r == RoleChef || r == RoleAdmin
}

type User struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	PasswordHash []byte    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
