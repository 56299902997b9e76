package routes

import (
	"fmt"
	"landmarket-server/models"
	"landmarket-server/services"
	"landmarket-server/storage"
	"landmarket-server/utils"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// actorFromToken builds the acting user from the verified access token; the
// authorization rules only need the ID and role.
func actorFromToken(ctx iris.Context) *models.User {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	actor := models.User{Role: claims.Role}
	actor.ID = claims.ID
	return &actor
}

func denyWith(decision services.Decision, ctx iris.Context) {
	utils.JSONError(ctx, iris.StatusForbidden, decision.Kind, decision.Reason)
}

func CreateProperty(ctx iris.Context) {
	actor := actorFromToken(ctx)

	if decision := services.CanCreateProperty(actor); !decision.Allowed {
		denyWith(decision, ctx)
		return
	}

	var input CreatePropertyInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	property := models.Property{
		OwnerID:      actor.ID,
		Title:        input.Title,
		Description:  input.Description,
		PropertyType: input.PropertyType,
		Price:        input.Price,
		Location:     input.Location,
		Size:         input.Size,
		IsAvailable:  input.IsAvailable,
	}

	if err := storage.DB.Create(&property).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(property)
}

func GetProperty(ctx iris.Context) {
	id := ctx.Params().Get("id")

	property := getPropertyWithAssociations(id, ctx)
	if property == nil {
		return
	}

	ctx.JSON(property)
}

// ListProperties filters by role: landowners see their own listings, admins
// everything, everyone else only what is available.
func ListProperties(ctx iris.Context) {
	actor := actorFromToken(ctx)

	query := storage.DB.Preload("Images").Order("created_at DESC")
	switch actor.Role {
	case models.RoleLandowner:
		query = query.Where("owner_id = ?", actor.ID)
	case models.RoleAdmin:
	default:
		query = query.Where("is_available = true")
	}

	var properties []models.Property
	if err := query.Find(&properties).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(properties)
}

// ListAvailableProperties is the public listing: available properties only,
// no authentication required.
func ListAvailableProperties(ctx iris.Context) {
	var properties []models.Property
	err := storage.DB.Preload("Images").
		Where("is_available = true").
		Order("created_at DESC").
		Find(&properties).Error
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(properties)
}

func UpdateProperty(ctx iris.Context) {
	id := ctx.Params().Get("id")

	property := getPropertyWithAssociations(id, ctx)
	if property == nil {
		return
	}

	actor := actorFromToken(ctx)
	if decision := services.CanMutateProperty(actor, property); !decision.Allowed {
		denyWith(decision, ctx)
		return
	}

	var input UpdatePropertyInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	updates := map[string]interface{}{
		"title":         input.Title,
		"description":   input.Description,
		"property_type": input.PropertyType,
		"price":         input.Price,
		"location":      input.Location,
		"size":          input.Size,
	}
	if input.IsAvailable != nil {
		updates["is_available"] = *input.IsAvailable
	}

	if err := storage.DB.Model(property).Updates(updates).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusNoContent)
}

// DeleteProperty removes a property and cascades over its dependents.
func DeleteProperty(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var property models.Property
	propertyExists := storage.DB.Find(&property, id)
	if propertyExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if propertyExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	actor := actorFromToken(ctx)
	if decision := services.CanMutateProperty(actor, &property); !decision.Allowed {
		denyWith(decision, ctx)
		return
	}

	if err := storage.DB.Delete(&models.Property{}, id).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	storage.DB.Where("property_id = ?", id).Delete(&models.PropertyImage{})
	storage.DB.Where("property_id = ?", id).Delete(&models.VisitRequest{})
	storage.DB.Where("property_id = ?", id).Delete(&models.PropertyReport{})
	storage.DB.Where("property_id = ?", id).Delete(&models.Transaction{})

	if actor.Role == models.RoleAdmin {
		utils.Audit(ctx, "property.delete", "property", property.ID, property, nil)
	}

	ctx.StatusCode(iris.StatusNoContent)
}

// CreatePropertyImage uploads a base64 image and attaches it to the property.
// When flagged main, any previous main image loses the flag first.
func CreatePropertyImage(ctx iris.Context) {
	id := ctx.Params().Get("id")

	property := getPropertyWithAssociations(id, ctx)
	if property == nil {
		return
	}

	actor := actorFromToken(ctx)
	if decision := services.CanMutatePropertyImage(actor, property); !decision.Allowed {
		denyWith(decision, ctx)
		return
	}

	var input CreatePropertyImageInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	publicID := fmt.Sprintf("property/%d/%d", property.ID, time.Now().UnixMilli())
	url := storage.UploadBase64Image(input.Image, publicID)
	if url == "" {
		utils.CreateError(iris.StatusBadGateway, "Upload Error", "Failed to upload image", ctx)
		return
	}

	image := models.PropertyImage{
		PropertyID: property.ID,
		URL:        url,
		IsMain:     input.IsMain,
	}

	if input.IsMain {
		storage.DB.Model(&models.PropertyImage{}).
			Where("property_id = ? AND is_main = true", property.ID).
			Update("is_main", false)
	}

	if err := storage.DB.Create(&image).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(image)
}

func DeletePropertyImage(ctx iris.Context) {
	imageID := ctx.Params().Get("imageID")

	var image models.PropertyImage
	imageExists := storage.DB.Find(&image, imageID)
	if imageExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if imageExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	var property models.Property
	if err := storage.DB.First(&property, image.PropertyID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	actor := actorFromToken(ctx)
	if decision := services.CanMutatePropertyImage(actor, &property); !decision.Allowed {
		denyWith(decision, ctx)
		return
	}

	if err := storage.DB.Delete(&models.PropertyImage{}, imageID).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	storage.DeleteImage(image.URL)
	ctx.StatusCode(iris.StatusNoContent)
}

func getPropertyWithAssociations(id string, ctx iris.Context) *models.Property {
	var property models.Property
	propertyExists := storage.DB.Preload("Images").Preload("Owner").Find(&property, id)

	if propertyExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return nil
	}

	if propertyExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return nil
	}

	return &property
}

type CreatePropertyInput struct {
	Title        string  `json:"title" validate:"required,max=200"`
	Description  string  `json:"description"`
	PropertyType string  `json:"propertyType" validate:"required,oneof=land house apartment commercial"`
	Price        float64 `json:"price" validate:"gte=0"`
	Location     string  `json:"location" validate:"required,max=200"`
	Size         float64 `json:"size" validate:"required,gt=0"`
	IsAvailable  *bool   `json:"isAvailable"`
}

type UpdatePropertyInput struct {
	Title        string  `json:"title" validate:"required,max=200"`
	Description  string  `json:"description"`
	PropertyType string  `json:"propertyType" validate:"required,oneof=land house apartment commercial"`
	Price        float64 `json:"price" validate:"gte=0"`
	Location     string  `json:"location" validate:"required,max=200"`
	Size         float64 `json:"size" validate:"required,gt=0"`
	IsAvailable  *bool   `json:"isAvailable"`
}

type CreatePropertyImageInput struct {
	Image  string `json:"image" validate:"required"`
	IsMain bool   `json:"isMain"`
}
