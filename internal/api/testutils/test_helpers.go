package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/jkamau/duka-server/internal/api"
	"github.com/jkamau/duka-server/internal/config"
	"github.com/jkamau/duka-server/internal/models"
	"github.com/jkamau/duka-server/internal/repository"
	"github.com/jkamau/duka-server/internal/service"
	"github.com/jkamau/duka-server/internal/session"
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository repository.Repository
	Service    service.Service
	Sessions   *session.Store
	JWTSecret  []byte
	DB         *sqlx.DB

	TestShopID  string
	OtherShopID string

	SellerID  string
	SellerJWT string
	AdminID   string
	AdminJWT  string
}

// SetupTestContext creates a new test context with initialized dependencies.
// It needs a reachable Postgres (TEST_DB_NAME) and Redis.
func SetupTestContext(t *testing.T) *TestContext {
	// Load configuration from environment
	cfg := config.LoadConfig()

	// Override with test-specific config
	if cfg.Database.TestDBName != "" {
		cfg.Database.DBName = cfg.Database.TestDBName
	} else {
		cfg.Database.DBName = "duka_test"
	}

	// Use a test JWT secret
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "test-secret-key"
	}

	// Set up database
	db, err := config.SetupDatabase(cfg)
	assert.NoError(t, err, "Failed to set up test database")

	// Session store
	sessions, err := session.NewStore(cfg.Redis.Addr, cfg.Redis.Password, time.Hour)
	assert.NoError(t, err, "Failed to connect to test session store")

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Create service
	svc := service.NewDefaultService(repo, sessions, cfg.Auth.JWTSecret, time.Hour)

	// Create API handler; no notify listener in tests, the watch endpoint
	// just reports unavailable
	handler := api.NewHandler(svc, sessions, nil)

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.Default()

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	// Set up routes
	handler.SetupRoutes(router)

	ctx := &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		Sessions:   sessions,
		JWTSecret:  []byte(cfg.Auth.JWTSecret),
		DB:         db,
	}

	cleanupTestDatabase(t, repo)
	seedShops(t, ctx)
	seedUsers(t, ctx, cfg.Auth.JWTSecret)

	return ctx
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(t *TestContext) {
	if t.DB != nil {
		cleanupTestDatabase(nil, t.Repository)
		t.DB.Close()
	}
	if t.Sessions != nil {
		t.Sessions.Close()
	}
}

// cleanupTestDatabase removes all test data, children first
func cleanupTestDatabase(t *testing.T, repo repository.Repository) {
	pgRepo, ok := repo.(*repository.PostgresRepository)
	if !ok {
		return
	}
	db := pgRepo.GetDB()

	for _, table := range []string{
		"sales_items",
		"sales_transactions",
		"sales",
		"inventory",
		"profiles",
		"shops",
	} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil && t != nil {
			t.Logf("Warning: Failed to clean %s: %v", table, err)
		}
	}
}

func seedShops(t *testing.T, ctx *TestContext) {
	ctx.TestShopID = "kiambu"
	ctx.OtherShopID = "nakuru"

	for id, name := range map[string]string{
		ctx.TestShopID:  "Kiambu Shop",
		ctx.OtherShopID: "Nakuru Shop",
	} {
		err := ctx.Repository.CreateShop(context.Background(), &models.Shop{
			ID:        id,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		})
		assert.NoError(t, err, "Failed to seed shop %s", id)
	}
}

func seedUsers(t *testing.T, ctx *TestContext, jwtSecret string) {
	shopID := ctx.TestShopID
	shopName := "Kiambu Shop"
	ctx.SellerID, ctx.SellerJWT = createTestUser(t, ctx, jwtSecret, &models.Profile{
		Username:    "seller@example.com",
		DisplayName: "Test Seller",
		Role:        models.RoleSeller,
		ShopID:      &shopID,
		ShopName:    &shopName,
	})

	ctx.AdminID, ctx.AdminJWT = createTestUser(t, ctx, jwtSecret, &models.Profile{
		Username:    "admin@example.com",
		DisplayName: "Test Admin",
		Role:        models.RoleAdmin,
	})
}

// createTestUser inserts the profile and returns its ID plus a signed token
// backed by a live session, the same shape Login produces.
func createTestUser(t *testing.T, ctx *TestContext, jwtSecret string, profile *models.Profile) (string, string) {
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("testpassword"), bcrypt.DefaultCost)

	profile.ID = uuid.New().String()
	profile.PasswordHash = string(hashedPassword)
	profile.CreatedAt = time.Now().UTC()
	profile.UpdatedAt = time.Now().UTC()

	err := ctx.Repository.CreateProfile(context.Background(), profile)
	assert.NoError(t, err, "Failed to create test user")

	tokenID := uuid.New().String()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  profile.ID,
		"jti":  tokenID,
		"role": profile.Role,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	})

	tokenString, err := token.SignedString([]byte(jwtSecret))
	assert.NoError(t, err, "Failed to generate JWT token")

	err = ctx.Sessions.Save(context.Background(), tokenID, profile)
	assert.NoError(t, err, "Failed to store test session")

	return profile.ID, tokenString
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}
