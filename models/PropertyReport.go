package models

import (
	"gorm.io/gorm"
)

const (
	ReportStatusPending  = "pending"
	ReportStatusReviewed = "reviewed"
	ReportStatusResolved = "resolved"
)

type PropertyReport struct {
	gorm.Model
	PropertyID  uint     `json:"propertyID" gorm:"index"`
	ReporterID  uint     `json:"reporterID" gorm:"index"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status" gorm:"type:varchar(20);default:pending"` // pending, reviewed, resolved
	Property    Property `json:"property" gorm:"foreignKey:PropertyID;references:ID"`
	Reporter    User     `json:"reporter" gorm:"foreignKey:ReporterID;references:ID"`
}
