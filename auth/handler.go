package auth

import (
	"chat-relay-server/db"
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	db   *db.Queries
	conn *pgxpool.Pool
}

func NewAuthHandler(db *db.Queries, conn *pgxpool.Pool) *AuthHandler {
	return &AuthHandler{
		db:   db,
		conn: conn,
	}
}

func (h *AuthHandler) registerOrUpdateDeviceKey(
	ctx context.Context,
	userID uuid.UUID,
	deviceIdentifier string,
	base64PublicKey string,
) error {
	publicKeyBytes, err := base64.StdEncoding.DecodeString(base64PublicKey)
	if err != nil {
		log.Printf("Error decoding public key for user %s, device %s: %v", userID, deviceIdentifier, err)
		return err
	}

	_, err = h.db.RegisterDeviceKey(ctx, db.RegisterDeviceKeyParams{
		UserID:           userID,
		DeviceIdentifier: deviceIdentifier,
		PublicKey:        publicKeyBytes,
	})
	if err != nil {
		log.Printf("Error registering/updating device key for user %s, device %s: %v", userID, deviceIdentifier, err)
		return err
	}
	return nil
}

func signToken(userID uuid.UUID) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 24)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}

func (h *AuthHandler) Signup(c *gin.Context) {
	ctx := c.Request.Context()
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request: " + err.Error()})
		return
	}

	if strings.TrimSpace(req.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username cannot be blank"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Signup failed"})
		return
	}

	user, err := h.db.InsertUser(ctx, db.InsertUserParams{
		Username: strings.TrimSpace(req.Username),
		Email:    req.Email,
		Password: pgtype.Text{String: string(hash), Valid: true},
	})
	if err != nil {
		log.Printf("Error inserting user during signup for %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Signup failed, possibly due to existing user or database issue."})
		return
	}

	if err := h.registerOrUpdateDeviceKey(ctx, user.ID, req.DeviceIdentifier, req.PublicKey); err != nil {
		log.Printf("Warning: User %s signed up, but device key registration failed: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Signup succeeded but failed to register device."})
		return
	}

	tokenString, err := signToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString})
}

func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request: " + err.Error()})
		return
	}

	user, err := h.db.GetUserByEmailInternal(ctx, req.Email)
	if err != nil {
		// Burn a comparison so unknown emails take as long as bad passwords.
		dummyHash := []byte("$2a$12$ZHc6p51/1IsM/4/hz/sUvezdkXuT1IF75EF5nyKyRTu7XyGDd0PM2")
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))

		log.Printf("Login attempt for non-existent or problematic email %s: %v", req.Email, err)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Login failed: Invalid credentials"})
		return
	}

	if !user.Password.Valid {
		log.Printf("Login attempt failed for email %s: user has no password set.", req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Login failed: Account issue."})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password.String), []byte(req.Password)); err != nil {
		log.Printf("Login attempt failed for email %s: incorrect password.", req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Login failed: Invalid credentials"})
		return
	}

	if err := h.registerOrUpdateDeviceKey(ctx, user.ID, req.DeviceIdentifier, req.PublicKey); err != nil {
		log.Printf("Warning: User %s logged in, but device key registration/update failed: %v", user.ID, err)
	}

	tokenString, err := signToken(user.ID)
	if err != nil {
		log.Printf("Error signing token for user %s after login: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": tokenString, "user_id": user.ID, "username": user.Username})
}
