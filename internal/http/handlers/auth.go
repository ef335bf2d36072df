package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/altpaynet/regreport/internal/models"
	"github.com/altpaynet/regreport/internal/security"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const tokenExpiry = 12 * time.Hour

// AuthHandler handles operator authentication.
type AuthHandler struct {
	db     *gorm.DB
	secret string
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, secret string) *AuthHandler {
	return &AuthHandler{db: db, secret: secret}
}

// loginRequest defines the request body for operator login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates an operator and issues a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	username := strings.TrimSpace(body.Username)
	password := strings.TrimSpace(body.Password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	var operator models.Operator
	if errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&operator).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if !operator.IsEnabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "operator account is disabled"})
		return
	}

	if !security.CheckPassword(operator.PasswordHash, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errToken := security.GenerateToken(h.secret, operator.ID, operator.Username, tokenExpiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": operator.Username,
	})
}
