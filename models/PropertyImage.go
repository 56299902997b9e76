package models

import (
	"gorm.io/gorm"
)

type PropertyImage struct {
	gorm.Model
	PropertyID uint   `json:"propertyID" gorm:"index"`
	URL        string `json:"url"`
	IsMain     bool   `json:"isMain" gorm:"default:false"`
}
