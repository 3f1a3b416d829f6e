package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type CreateRoomInput struct {
	Name        string `json:"name" binding:"required" example:"Friday Night Listening"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"is_public"`
	MaxUsers    int    `json:"max_users"`
}

// CreateRoom godoc
// @Summary Create a listening room
// @Description Creates a room with a shareable join code; the creator becomes host
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param room body CreateRoomInput true "Room creation"
// @Success 201 {object} map[string]interface{} "Room created"
// @Failure 400 {object} map[string]string "Invalid input"
// @Router /api/rooms [post]
func CreateRoom(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input CreateRoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	isPublic := true
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}
	maxUsers := input.MaxUsers
	if maxUsers == 0 {
		maxUsers = 10
	}

	room, err := roomRepo.CreateRoom(input.Name, input.Description, userID, isPublic, maxUsers)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"room": room})
}

// GetRooms godoc
// @Summary List rooms
// @Description Returns public rooms plus the rooms the user participates in
// @Tags rooms
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "List of rooms"
// @Router /api/rooms [get]
func GetRooms(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	public, err := roomRepo.ListPublicRooms()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rooms"})
		return
	}

	mine, err := roomRepo.RoomsForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rooms"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"public": public, "joined": mine})
}

// GetRoom godoc
// @Summary Get one room with participants and queue
// @Tags rooms
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Success 200 {object} map[string]interface{} "Room detail"
// @Failure 404 {object} map[string]string "Not found"
// @Router /api/rooms/{id} [get]
func GetRoom(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}

	room, err := roomRepo.FindByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	participants, err := roomRepo.ActiveParticipants(room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch participants"})
		return
	}

	queue, err := roomRepo.GetQueue(room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch queue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":         room,
		"participants": participants,
		"queue":        queue,
	})
}
