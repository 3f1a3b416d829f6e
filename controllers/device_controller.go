package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/musable/musable/repository"
)

// GetDevices godoc
// @Summary List the authenticated user's registered devices
// @Tags devices
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Devices"
// @Router /api/devices [get]
func GetDevices(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	devices, err := sessionRepo.ListDevices(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch devices"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// DeleteDevice godoc
// @Summary Remove a registered device
// @Tags devices
// @Produce json
// @Security BearerAuth
// @Param deviceId path string true "Device identifier"
// @Success 200 {object} map[string]string "Deleted"
// @Failure 404 {object} map[string]string "Not found"
// @Router /api/devices/{deviceId} [delete]
func DeleteDevice(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	deviceID := c.Param("deviceId")

	if err := sessionRepo.DeleteDevice(userID, deviceID); err != nil {
		if err == repository.ErrDeviceNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete device"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device deleted"})
}

// GetSession godoc
// @Summary Get the authenticated user's playback session
// @Tags devices
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Session"
// @Router /api/session [get]
func GetSession(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	session, err := sessionRepo.GetSession(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}
