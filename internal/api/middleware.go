package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jkamau/duka-server/internal/models"
	"github.com/jkamau/duka-server/internal/session"
)

// AuthMiddleware returns a Gin middleware for authentication. A request is
// authenticated when it carries a valid token AND the session record the
// token points at still exists; logout deletes the record, so logged-out
// tokens are rejected even before they expire.
func AuthMiddleware(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get the JWT token from the Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authentication required")
			return
		}

		// Check if the Authorization header starts with "Bearer "
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Invalid token format")
			return
		}

		tokenString := parts[1]

		// Parse the JWT token
		jwtSecret := c.MustGet("jwtSecret").([]byte)
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return jwtSecret, nil
		})

		if err != nil || !token.Valid {
			abortUnauthorized(c, "Invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortUnauthorized(c, "Invalid token claims")
			return
		}

		userID, ok := claims["sub"].(string)
		if !ok {
			abortUnauthorized(c, "Invalid user ID in token")
			return
		}

		tokenID, ok := claims["jti"].(string)
		if !ok {
			abortUnauthorized(c, "Invalid token ID")
			return
		}

		// The session record is the source of truth for who the caller is;
		// admin edits to the profile take effect on the next login.
		profile, err := sessions.Get(c.Request.Context(), tokenID)
		if err != nil {
			abortUnauthorized(c, "Session expired or logged out")
			return
		}

		c.Set("userId", userID)
		c.Set("tokenId", tokenID)
		c.Set("profile", profile)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated profile has the role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile := currentProfile(c)
		if profile == nil || profile.Role != role {
			c.JSON(http.StatusForbidden, models.ErrorResponse{
				Status:  "error",
				Code:    "FORBIDDEN",
				Message: "Insufficient permissions",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireShopAccess aborts with 403 when a seller addresses a shop other
// than their own. Admins pass for any shop.
func RequireShopAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile := currentProfile(c)
		if profile == nil {
			c.JSON(http.StatusForbidden, models.ErrorResponse{
				Status:  "error",
				Code:    "FORBIDDEN",
				Message: "Insufficient permissions",
			})
			c.Abort()
			return
		}

		if profile.Role == models.RoleAdmin {
			c.Next()
			return
		}

		shopID := c.Param("shopId")
		if profile.ShopID == nil || *profile.ShopID != shopID {
			c.JSON(http.StatusForbidden, models.ErrorResponse{
				Status:  "error",
				Code:    "FORBIDDEN",
				Message: "You don't have access to this shop",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentProfile(c *gin.Context) *models.Profile {
	value, exists := c.Get("profile")
	if !exists {
		return nil
	}
	profile, _ := value.(*models.Profile)
	return profile
}

func abortUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Status:  "error",
		Code:    "UNAUTHORIZED",
		Message: message,
	})
	c.Abort()
}
