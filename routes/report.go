package routes

import (
	"landmarket-server/models"
	"landmarket-server/services"
	"landmarket-server/storage"
	"landmarket-server/utils"

	"github.com/kataras/iris/v12"
)

var reportStatusOrder = map[string]int{
	models.ReportStatusPending:  0,
	models.ReportStatusReviewed: 1,
	models.ReportStatusResolved: 2,
}

func CreatePropertyReport(ctx iris.Context) {
	actor := actorFromToken(ctx)

	var input CreatePropertyReportInput
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

	if decision := services.CanCreateReport(actor, &property); !decision.Allowed {
		denyWith(decision, ctx)
		return
	}

	report := models.PropertyReport{
		PropertyID:  property.ID,
		ReporterID:  actor.ID,
		Title:       input.Title,
		Description: input.Description,
		Status:      models.ReportStatusPending,
	}

	if err := storage.DB.Create(&report).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(report)
}

func ListPropertyReports(ctx iris.Context) {
	actor := actorFromToken(ctx)

	query := storage.DB.Preload("Property").Order("created_at DESC")
	if actor.Role != models.RoleAdmin {
		query = query.Where("reporter_id = ?", actor.ID)
	}

	var reports []models.PropertyReport
	if err := query.Find(&reports).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(reports)
}

func UpdatePropertyReport(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var report models.PropertyReport
	reportExists := storage.DB.Find(&report, id)
	if reportExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if reportExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	var input UpdatePropertyReportInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var changedFields []string
	if input.Status != nil && *input.Status != report.Status {
		changedFields = append(changedFields, "status")
	}
	if input.Description != nil && *input.Description != report.Description {
		changedFields = append(changedFields, "description")
	}

	actor := actorFromToken(ctx)
	if decision := services.CanUpdateReport(actor, changedFields); !decision.Allowed {
		denyWith(decision, ctx)
		return
	}

	updates := map[string]interface{}{}
	if input.Status != nil && *input.Status != report.Status {
		if reportStatusOrder[*input.Status] <= reportStatusOrder[report.Status] {
			utils.CreateError(iris.StatusBadRequest, "Invalid Status",
				"Report status cannot move backwards", ctx)
			return
		}
		updates["status"] = *input.Status
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}

	if len(updates) > 0 {
		if err := storage.DB.Model(&report).Updates(updates).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		if actor.Role == models.RoleAdmin {
			utils.Audit(ctx, "report.update", "property_report", report.ID, report, updates)
		}
	}

	ctx.StatusCode(iris.StatusNoContent)
}

type CreatePropertyReportInput struct {
	PropertyID  uint   `json:"propertyID" validate:"required"`
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"required,max=2000"`
}

type UpdatePropertyReportInput struct {
	Status      *string `json:"status" validate:"omitempty,oneof=pending reviewed resolved"`
	Description *string `json:"description"`
}
