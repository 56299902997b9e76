package models

import (
	"gorm.io/gorm"
)

const (
	PropertyTypeLand       = "land"
	PropertyTypeHouse      = "house"
	PropertyTypeApartment  = "apartment"
	PropertyTypeCommercial = "commercial"
)

type Property struct {
	gorm.Model
	OwnerID      uint            `json:"ownerID" gorm:"index"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	PropertyType string          `json:"propertyType" gorm:"type:varchar(20);index"` // land, house, apartment, commercial
	Price        float64         `json:"price"`
	Location     string          `json:"location"`
	Size         float64         `json:"size"` // square meters
	IsAvailable  *bool           `json:"isAvailable" gorm:"default:true"`
	Images       []PropertyImage `json:"images" gorm:"foreignKey:PropertyID;references:ID"`
	Owner        User            `json:"owner" gorm:"foreignKey:OwnerID;references:ID"`
}

// Available treats a nil flag as available, matching the column default.
func (p *Property) Available() bool {
	return p.IsAvailable == nil || *p.IsAvailable
}
