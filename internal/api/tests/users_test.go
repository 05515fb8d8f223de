package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jkamau/duka-server/internal/api/testutils"
	"github.com/jkamau/duka-server/internal/models"
)

func TestCreateUser(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Test case 1: Admin creates a seller bound to a shop
	createReq := models.CreateUserRequest{
		Username:    "mary@example.com",
		Password:    "Password123",
		DisplayName: "Mary Wanjiku",
		Role:        models.RoleSeller,
		ShopID:      testCtx.OtherShopID,
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/admin/users",
		createReq,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.ProfileResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.RoleSeller, resp.Profile.Role)
	if assert.NotNil(t, resp.Profile.ShopID) {
		assert.Equal(t, testCtx.OtherShopID, *resp.Profile.ShopID)
	}

	// The new seller can log in
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		models.LoginRequest{Username: "mary@example.com", Password: "Password123"},
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code)

	// Test case 2: Duplicate username
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/admin/users",
		createReq,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusConflict, w.Code)

	// Test case 3: Seller without a shop is rejected
	noShopReq := models.CreateUserRequest{
		Username:    "noshop@example.com",
		Password:    "Password123",
		DisplayName: "No Shop",
		Role:        models.RoleSeller,
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/admin/users",
		noShopReq,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 4: Seller token cannot reach admin routes
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/admin/users",
		createReq,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUserLifecycle(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// List includes the seeded seller and admin
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/admin/users",
		nil,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var listResp models.ProfileListResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Len(t, listResp.Profiles, 2)

	// Rename the seller
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/admin/users/"+testCtx.SellerID,
		models.UpdateUserRequest{DisplayName: "John Kamau"},
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var updated models.ProfileResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "John Kamau", updated.Profile.DisplayName)

	// Reset their password, old one stops working
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/admin/users/"+testCtx.SellerID+"/reset-password",
		models.ResetPasswordRequest{NewPassword: "newpassword"},
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		models.LoginRequest{Username: "seller@example.com", Password: "testpassword"},
		nil,
	)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		models.LoginRequest{Username: "seller@example.com", Password: "newpassword"},
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code)

	// Delete the seller
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		"/api/admin/users/"+testCtx.SellerID,
		nil,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	// Deleting again is a 404
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		"/api/admin/users/"+testCtx.SellerID,
		nil,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPromoteSellerToAdmin(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Promoting a seller drops their shop binding
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/admin/users/"+testCtx.SellerID,
		models.UpdateUserRequest{Role: models.RoleAdmin},
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ProfileResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.RoleAdmin, resp.Profile.Role)
	assert.Nil(t, resp.Profile.ShopID)
	assert.Nil(t, resp.Profile.ShopName)

	// Demoting back to seller requires naming a shop again
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/admin/users/"+testCtx.SellerID,
		models.UpdateUserRequest{Role: models.RoleSeller},
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/admin/users/"+testCtx.SellerID,
		models.UpdateUserRequest{Role: models.RoleSeller, ShopID: testCtx.OtherShopID},
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if assert.NotNil(t, resp.Profile.ShopID) {
		assert.Equal(t, testCtx.OtherShopID, *resp.Profile.ShopID)
	}
}

func TestShopManagement(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	// Any authenticated user can list shops
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/shops",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var listResp models.ShopListResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Len(t, listResp.Shops, 2)

	// Admin creates a shop
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/admin/shops",
		models.CreateShopRequest{ID: "eldoret", Name: "Eldoret Shop"},
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusCreated, w.Code)

	// Duplicate shop ID is rejected
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/admin/shops",
		models.CreateShopRequest{ID: "eldoret", Name: "Eldoret Again"},
		testutils.AuthHeaders(testCtx.AdminJWT),
	)

	assert.Equal(t, http.StatusConflict, w.Code)

	// Sellers cannot create shops
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/admin/shops",
		models.CreateShopRequest{ID: "nyeri", Name: "Nyeri Shop"},
		testutils.AuthHeaders(testCtx.SellerJWT),
	)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
