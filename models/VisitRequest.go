package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	VisitStatusPending  = "pending"
	VisitStatusAccepted = "accepted"
	VisitStatusRejected = "rejected"
)

type VisitRequest struct {
	gorm.Model
	PropertyID    uint      `json:"propertyID" gorm:"index"`
	RequesterID   uint      `json:"requesterID" gorm:"index"`
	RequestedDate time.Time `json:"requestedDate"`
	Description   string    `json:"description"`
	Status        string    `json:"status" gorm:"type:varchar(20);default:pending"` // pending, accepted, rejected
	Property      Property  `json:"property" gorm:"foreignKey:PropertyID;references:ID"`
	Requester     User      `json:"requester" gorm:"foreignKey:RequesterID;references:ID"`
}
