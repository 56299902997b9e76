package models

import (
	"gorm.io/gorm"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusAccepted  = "accepted"
	TransactionStatusRejected  = "rejected"
	TransactionStatusCompleted = "completed"
)

// Transaction records a purchase attempt. SellerID is the property owner at
// creation time and never changes afterwards, even if the property is
// transferred.
type Transaction struct {
	gorm.Model
	PropertyID  uint     `json:"propertyID" gorm:"index"`
	BuyerID     uint     `json:"buyerID" gorm:"index"`
	SellerID    uint     `json:"sellerID" gorm:"index"`
	AgreedPrice float64  `json:"agreedPrice"`
	Status      string   `json:"status" gorm:"type:varchar(20);default:pending"` // pending, accepted, rejected, completed
	Property    Property `json:"property" gorm:"foreignKey:PropertyID;references:ID"`
	Buyer       User     `json:"buyer" gorm:"foreignKey:BuyerID;references:ID"`
	Seller      User     `json:"seller" gorm:"foreignKey:SellerID;references:ID"`
}
