package routes

import (
	"landmarket-server/models"
	"landmarket-server/services"
	"landmarket-server/storage"
	"landmarket-server/utils"
	"time"

	"github.com/kataras/iris/v12"
)

var visitStatusOrder = map[string]int{
	models.VisitStatusPending:  0,
	models.VisitStatusAccepted: 1,
	models.VisitStatusRejected: 1,
}

func CreateVisitRequest(ctx iris.Context) {
	actor := actorFromToken(ctx)

	var input CreateVisitRequestInput
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

	if decision := services.CanCreateVisitRequest(actor, &property); !decision.Allowed {
		denyWith(decision, ctx)
		return
	}

	visit := models.VisitRequest{
		PropertyID:    property.ID,
		RequesterID:   actor.ID,
		RequestedDate: input.RequestedDate,
		Description:   input.Description,
		Status:        models.VisitStatusPending,
	}

	if err := storage.DB.Create(&visit).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(visit)
}

// ListVisitRequests scopes by role: requesters see their own requests,
// landowners the requests against their properties, admins everything.
func ListVisitRequests(ctx iris.Context) {
	actor := actorFromToken(ctx)

	query := storage.DB.Preload("Property").Order("created_at DESC")
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleLandowner:
		query = query.
			Joins("JOIN properties ON properties.id = visit_requests.property_id").
			Where("properties.owner_id = ? OR visit_requests.requester_id = ?", actor.ID, actor.ID)
	default:
		query = query.Where("requester_id = ?", actor.ID)
	}

	var visits []models.VisitRequest
	if err := query.Find(&visits).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(visits)
}

func UpdateVisitRequest(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var visit models.VisitRequest
	visitExists := storage.DB.Find(&visit, id)
	if visitExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if visitExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	var property models.Property
	if err := storage.DB.First(&property, visit.PropertyID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	var input UpdateVisitRequestInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var changedFields []string
	if input.Status != nil && *input.Status != visit.Status {
		changedFields = append(changedFields, "status")
	}
	if input.RequestedDate != nil && !input.RequestedDate.Equal(visit.RequestedDate) {
		changedFields = append(changedFields, "requested_date")
	}
	if input.Description != nil && *input.Description != visit.Description {
		changedFields = append(changedFields, "description")
	}

	actor := actorFromToken(ctx)
	if decision := services.CanUpdateVisitRequest(actor, &visit, &property, changedFields); !decision.Allowed {
		denyWith(decision, ctx)
		return
	}

	updates := map[string]interface{}{}
	if input.Status != nil && *input.Status != visit.Status {
		// Status only moves forward.
		if visitStatusOrder[*input.Status] <= visitStatusOrder[visit.Status] {
			utils.CreateError(iris.StatusBadRequest, "Invalid Status",
				"Visit status cannot move backwards", ctx)
			return
		}
		updates["status"] = *input.Status
	}
	if input.RequestedDate != nil {
		updates["requested_date"] = *input.RequestedDate
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}

	if len(updates) > 0 {
		if err := storage.DB.Model(&visit).Updates(updates).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
	}

	ctx.StatusCode(iris.StatusNoContent)
}

func DeleteVisitRequest(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var visit models.VisitRequest
	visitExists := storage.DB.Find(&visit, id)
	if visitExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if visitExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	actor := actorFromToken(ctx)
	if actor.ID != visit.RequesterID && actor.Role != models.RoleAdmin {
		utils.JSONError(ctx, iris.StatusForbidden, services.DenyNotParticipant,
			"only the requester can withdraw a visit request")
		return
	}

	if err := storage.DB.Delete(&models.VisitRequest{}, id).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusNoContent)
}

type CreateVisitRequestInput struct {
	PropertyID    uint      `json:"propertyID" validate:"required"`
	RequestedDate time.Time `json:"requestedDate" validate:"required"`
	Description   string    `json:"description"`
}

type UpdateVisitRequestInput struct {
	Status        *string    `json:"status" validate:"omitempty,oneof=pending accepted rejected"`
	RequestedDate *time.Time `json:"requestedDate"`
	Description   *string    `json:"description"`
}
