package entity

import "time"

// User 系统用户（角色解析用）
type User struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	Username string `json:"username" gorm:"size:100;uniqueIndex;not null"`
	Name     string `json:"name" gorm:"size:100;not null"`
	Role     string `json:"role" gorm:"size:32;not null;default:site_engineer"`
	Status   string `json:"status" gorm:"size:20;default:active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "procure_users"
}

// 角色
const (
	RoleSiteEngineer    = "site_engineer"
	RoleManager         = "manager"
	RolePurchaseOfficer = "purchase_officer"
	RoleAdmin           = "procure_admin"
)
