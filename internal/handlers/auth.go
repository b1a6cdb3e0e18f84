package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tariel-x/callsupport/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const tokenTTL = 30 * 24 * time.Hour

type RegisterRequest struct {
	DisplayName string          `json:"displayName" binding:"required,min=2,max=100"`
	Role        models.UserRole `json:"role"`
}

type LoginRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := req.Role
	switch role {
	case "":
		role = models.RoleMember
	case models.RoleMember, models.RoleTrainer:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be 'member' or 'trainer'"})
		return
	}

	var existing models.User
	if err := h.db.Where("display_name = ?", req.DisplayName).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User with this name already exists"})
		return
	}

	user := models.User{DisplayName: req.DisplayName, Role: role}
	if err := h.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	token, err := h.generateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	h.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	c.JSON(http.StatusCreated, LoginResponse{Token: token, User: user})
}

func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.Where("display_name = ?", req.DisplayName).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	token, err := h.generateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, User: user})
}

func (h *Handlers) GetMe(c *gin.Context) {
	var user models.User
	if err := h.db.First(&user, "id = ?", c.GetString("user_id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handlers) generateToken(userID string) (string, error) {
	now := h.nowFn()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.config.JWTSecret))
}

// parseToken returns the user id carried by a bearer token.
func (h *Handlers) parseToken(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return "", errors.New("missing token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(h.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(h.nowFn))
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid user ID in token")
	}
	return userID, nil
}

func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, callResponse{StatusCode: http.StatusUnauthorized, Message: "Authorization header required"})
			return
		}

		userID, err := h.parseToken(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, callResponse{StatusCode: http.StatusUnauthorized, Message: err.Error()})
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
