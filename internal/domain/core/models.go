package core

import "time"

type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Phone     string     `json:"phone"`
	RoleID    string     `json:"roleId"`
	RoleName  string     `json:"roleName,omitempty"`
	BranchID  string     `json:"branchId"`
	Status    string     `json:"status"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Branch is one sales office. WorkingDays holds ISO weekday numbers
// (1=Monday .. 7=Sunday) on which the branch operates.
type Branch struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Timezone    string    `json:"timezone"`
	WorkingDays []int     `json:"workingDays"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Holiday struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}
