package routes

import (
	"landmarket-server/models"
	"landmarket-server/services"
	"landmarket-server/storage"
	"landmarket-server/utils"

	"github.com/kataras/iris/v12"
)

func CreateTransaction(ctx iris.Context) {
	actor := actorFromToken(ctx)

	var input CreateTransactionInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var property models.Property
	propertyExists := storage.DB.Find(&property, input.PropertyID)
	if propertyExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if propertyExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	var pendingCount int64
	if err := storage.DB.Model(&models.Transaction{}).
		Where("property_id = ? AND buyer_id = ? AND status = ?",
			property.ID, actor.ID, models.TransactionStatusPending).
		Count(&pendingCount).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	decision := services.CanCreateTransaction(actor, &property, pendingCount > 0)
	if !decision.Allowed {
		if pendingCount > 0 {
			utils.CreateError(iris.StatusBadRequest, "Duplicate Transaction",
				"A pending transaction for this property already exists", ctx)
			return
		}
		denyWith(decision, ctx)
		return
	}

	// The seller is the owner at creation time and stays so even if the
	// property changes hands later.
	transaction := models.Transaction{
		PropertyID:  property.ID,
		BuyerID:     actor.ID,
		SellerID:    property.OwnerID,
		AgreedPrice: input.AgreedPrice,
		Status:      models.TransactionStatusPending,
	}

	if err := storage.DB.Create(&transaction).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(transaction)
}

func ListTransactions(ctx iris.Context) {
	actor := actorFromToken(ctx)

	query := storage.DB.Preload("Property").Order("created_at DESC")
	if actor.Role != models.RoleAdmin {
		query = query.Where("buyer_id = ? OR seller_id = ?", actor.ID, actor.ID)
	}

	var transactions []models.Transaction
	if err := query.Find(&transactions).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(transactions)
}

func UpdateTransaction(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var transaction models.Transaction
	transactionExists := storage.DB.Find(&transaction, id)
	if transactionExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if transactionExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	var input UpdateTransactionInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	statusChanging := input.Status != transaction.Status

	actor := actorFromToken(ctx)
	decision := services.CanUpdateTransaction(actor, &transaction, input.Status, statusChanging)
	if !decision.Allowed {
		denyWith(decision, ctx)
		return
	}

	if statusChanging {
		allowed := transaction.Status == models.TransactionStatusPending ||
			(transaction.Status == models.TransactionStatusAccepted &&
				input.Status == models.TransactionStatusCompleted)
		if !allowed {
			utils.CreateError(iris.StatusBadRequest, "Invalid Status",
				"Transaction status cannot move backwards", ctx)
			return
		}
		if err := storage.DB.Model(&transaction).Update("status", input.Status).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		if actor.Role == models.RoleAdmin {
			utils.Audit(ctx, "transaction.update", "transaction", transaction.ID,
				transaction.Status, input.Status)
		}
	}

	ctx.StatusCode(iris.StatusNoContent)
}

type CreateTransactionInput struct {
	PropertyID  uint    `json:"propertyID" validate:"required"`
	AgreedPrice float64 `json:"agreedPrice" validate:"required,gt=0"`
}

type UpdateTransactionInput struct {
	Status string `json:"status" validate:"required,oneof=pending accepted rejected completed"`
}
