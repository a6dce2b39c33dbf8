package account

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the identity record owned by the profile service. Affiliates are
// users; only name and email are read here.
type User struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255)" json:"name"`
	Email     string    `gorm:"column:email;type:varchar(255);uniqueIndex" json:"email"`
	Role      string    `gorm:"column:role;type:varchar(16);not null;default:user" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (User) TableName() string {
	return "users"
}
