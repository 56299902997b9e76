package models

import (
	"gorm.io/gorm"
)

const (
	RoleLandowner = "landowner"
	RoleBuyer     = "buyer"
	RoleAdmin     = "admin"
)

type User struct {
	gorm.Model
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email" gorm:"uniqueIndex"`
	Password    string     `json:"-"`
	PhoneNumber string     `json:"phoneNumber"`
	Address     string     `json:"address"`
	Role        string     `json:"role" gorm:"type:varchar(20);default:buyer;index"` // landowner, buyer, admin
	Properties  []Property `json:"properties,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
}
