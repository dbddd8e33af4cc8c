package handlers

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"carpool/internal/utils"
)

// objectIDParam parses a hex ObjectID path parameter and writes a 400 when
// it is malformed.
func objectIDParam(c *gin.Context, name, resource string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+resource+" ID")
		return primitive.NilObjectID, false
	}
	return id, true
}

func primitiveID(hex string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(hex)
}
