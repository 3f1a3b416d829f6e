package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/musable/musable/database"
	"github.com/musable/musable/models"
)

type SendInviteInput struct {
	RoomID   uint   `json:"room_id" binding:"required"`
	Username string `json:"username" binding:"required"`
}

type RespondInviteInput struct {
	InviteID uint `json:"invite_id" binding:"required"`
	Accept   bool `json:"accept"`
}

// GetPendingInvites godoc
// @Summary List invites waiting on the authenticated user
// @Tags invites
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Pending invites"
// @Router /api/invites/pending [get]
func GetPendingInvites(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var invites []models.RoomInvite
	if err := database.DB.Preload("Room").Preload("Sender").
		Where("receiver_id = ? AND status = ?", userID, models.InvitePending).
		Find(&invites).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invites"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"invites": invites})
}

// SendInvite godoc
// @Summary Invite a user into a room
// @Tags invites
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param invite body SendInviteInput true "Invitation"
// @Success 201 {object} map[string]interface{} "Invite created"
// @Failure 400 {object} map[string]string "Invalid input"
// @Router /api/invites [post]
func SendInvite(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input SendInviteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Only room members can invite
	member, err := roomRepo.IsActiveParticipant(input.RoomID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "You must be a member of the room to invite others"})
		return
	}

	var receiver models.User
	if err := database.DB.Where("username = ?", input.Username).First(&receiver).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var existing models.RoomInvite
	if err := database.DB.Where("room_id = ? AND receiver_id = ? AND status = ?",
		input.RoomID, receiver.ID, models.InvitePending).First(&existing).Error; err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "An invitation has already been sent to this user"})
		return
	}

	invite := models.RoomInvite{
		RoomID:     input.RoomID,
		SenderID:   userID,
		ReceiverID: receiver.ID,
		Status:     models.InvitePending,
	}
	if err := database.DB.Create(&invite).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invitation"})
		return
	}

	database.DB.Preload("Room").Preload("Sender").First(&invite, invite.ID)
	c.JSON(http.StatusCreated, gin.H{"invite": invite})
}

// RespondToInvite godoc
// @Summary Accept or reject an invitation
// @Tags invites
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param response body RespondInviteInput true "Response"
// @Success 200 {object} map[string]interface{} "Updated invite"
// @Failure 404 {object} map[string]string "Not found"
// @Router /api/invites/respond [post]
func RespondToInvite(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input RespondInviteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var invite models.RoomInvite
	if err := database.DB.Where("id = ? AND receiver_id = ? AND status = ?",
		input.InviteID, userID, models.InvitePending).First(&invite).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invitation not found"})
		return
	}

	if input.Accept {
		invite.Status = models.InviteAccepted
	} else {
		invite.Status = models.InviteRejected
	}

	if err := database.DB.Save(&invite).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update invitation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"invite": invite})
}
