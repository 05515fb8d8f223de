package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jkamau/duka-server/internal/api/testutils"
	"github.com/jkamau/duka-server/internal/models"
)

func stockUp(t *testing.T, testCtx *testutils.TestContext, product string, quantity int) {
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/shops/"+testCtx.TestShopID+"/inventory",
		models.AddStockRequest{Product: product, Quantity: quantity, Unit: models.UnitBags},
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func recordSale(t *testing.T, testCtx *testutils.TestContext, req models.RecordSaleRequest) *models.SalesTransaction {
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/shops/"+testCtx.TestShopID+"/sales",
		req,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.SaleResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Transaction
}

func TestRecordSale(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	base := "/api/shops/" + testCtx.TestShopID
	stockUp(t, testCtx, "Dairy Meal", 10)

	// Test case 1: Selling 3 bags leaves 7
	txn := recordSale(t, testCtx, models.RecordSaleRequest{
		CustomerName: "John Kamau",
		Date:         "2024-03-01",
		Items: []models.SaleItemRequest{
			{Product: "Dairy Meal", Quantity: 3, Unit: models.UnitBags},
		},
	})
	assert.Equal(t, "2024-03-01", txn.SaleDate)
	assert.Len(t, txn.Items, 1)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		base+"/inventory",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var inv models.InventoryResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &inv))
	assert.Equal(t, 7, inv.Items[0].Quantity)

	// Test case 2: Selling more than on hand fails and nothing changes
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		base+"/sales",
		models.RecordSaleRequest{
			CustomerName: "John Kamau",
			Items: []models.SaleItemRequest{
				{Product: "Dairy Meal", Quantity: 12, Unit: models.UnitBags},
			},
		},
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		base+"/inventory",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &inv))
	assert.Equal(t, 7, inv.Items[0].Quantity)

	// Test case 3: Multi-line sale is all-or-nothing
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		base+"/sales",
		models.RecordSaleRequest{
			CustomerName: "Mary Wanjiku",
			Items: []models.SaleItemRequest{
				{Product: "Dairy Meal", Quantity: 2, Unit: models.UnitBags},
				{Product: "Growers Mash", Quantity: 1, Unit: models.UnitBags},
			},
		},
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		base+"/inventory",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &inv))
	assert.Equal(t, 7, inv.Items[0].Quantity)

	// Test case 4: Unknown date format
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		base+"/sales",
		models.RecordSaleRequest{
			CustomerName: "John Kamau",
			Date:         "01/03/2024",
			Items: []models.SaleItemRequest{
				{Product: "Dairy Meal", Quantity: 1, Unit: models.UnitBags},
			},
		},
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 5: No items
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		base+"/sales",
		models.RecordSaleRequest{CustomerName: "John Kamau"},
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSalesFilterAndSort(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	base := "/api/shops/" + testCtx.TestShopID
	stockUp(t, testCtx, "Dairy Meal", 50)
	stockUp(t, testCtx, "Layers Mash", 50)

	recordSale(t, testCtx, models.RecordSaleRequest{
		CustomerName: "John Kamau",
		Date:         "2024-03-01",
		Items:        []models.SaleItemRequest{{Product: "Dairy Meal", Quantity: 3, Unit: models.UnitBags}},
	})
	recordSale(t, testCtx, models.RecordSaleRequest{
		CustomerName: "Mary Wanjiku",
		Date:         "2024-03-02",
		Items:        []models.SaleItemRequest{{Product: "Layers Mash", Quantity: 2, Unit: models.UnitBags}},
	})
	recordSale(t, testCtx, models.RecordSaleRequest{
		CustomerName: "John Kamau",
		Date:         "2024-03-02",
		Items:        []models.SaleItemRequest{{Product: "Dairy Meal", Quantity: 1, Unit: models.UnitBags}},
	})

	// Default listing: newest date first, total over all lines
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		base+"/sales",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var list models.SalesListResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Transactions, 3)
	assert.Equal(t, 6, list.TotalQuantity)
	assert.Equal(t, "2024-03-02", list.Transactions[0].SaleDate)
	assert.Equal(t, "2024-03-01", list.Transactions[2].SaleDate)

	// Product filter narrows the list and the total
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		base+"/sales?product=Dairy Meal",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Transactions, 2)
	assert.Equal(t, 4, list.TotalQuantity)

	// Customer filter
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		base+"/sales?customer=Mary Wanjiku",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Transactions, 1)

	// Free-text search matches customer names case-insensitively
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		base+"/sales?search=kamau",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Transactions, 2)

	// Date range
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		base+"/sales?dateFrom=2024-03-02&dateTo=2024-03-02",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Transactions, 2)

	// Sort by customer
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		base+"/sales?sortBy=customer",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "John Kamau", list.Transactions[0].CustomerName)
	assert.Equal(t, "Mary Wanjiku", list.Transactions[2].CustomerName)
}

func TestSalesByDate(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	stockUp(t, testCtx, "Dairy Meal", 50)

	recordSale(t, testCtx, models.RecordSaleRequest{
		CustomerName: "John Kamau",
		Date:         "2024-03-01",
		Items:        []models.SaleItemRequest{{Product: "Dairy Meal", Quantity: 3, Unit: models.UnitBags}},
	})
	recordSale(t, testCtx, models.RecordSaleRequest{
		CustomerName: "Mary Wanjiku",
		Date:         "2024-03-01",
		Items:        []models.SaleItemRequest{{Product: "Dairy Meal", Quantity: 2, Unit: models.UnitBags}},
	})
	recordSale(t, testCtx, models.RecordSaleRequest{
		CustomerName: "John Kamau",
		Date:         "2024-03-05",
		Items:        []models.SaleItemRequest{{Product: "Dairy Meal", Quantity: 1, Unit: models.UnitBags}},
	})

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/shops/"+testCtx.TestShopID+"/sales/by-date",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SalesByDateResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if assert.Len(t, resp.Groups, 2) {
		assert.Equal(t, "2024-03-05", resp.Groups[0].Date)
		assert.Equal(t, 1, resp.Groups[0].TotalQuantity)
		assert.Equal(t, []string{"John Kamau"}, resp.Groups[0].Customers)

		assert.Equal(t, "2024-03-01", resp.Groups[1].Date)
		assert.Equal(t, 5, resp.Groups[1].TotalQuantity)
		assert.Len(t, resp.Groups[1].Transactions, 2)
		assert.Equal(t, []string{"John Kamau", "Mary Wanjiku"}, resp.Groups[1].Customers)
	}
}

func TestLegacySales(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	stockUp(t, testCtx, "Dairy Meal", 50)

	// A row written by an old client: product directly on the sale, no items
	// table, recorded an hour before anything modern.
	legacyID := "legacy-sale-1"
	_, err := testCtx.DB.Exec(
		`INSERT INTO sales (id, shop_id, product, quantity, unit, customer_name, sale_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now() - interval '1 hour')`,
		legacyID, testCtx.TestShopID, "Layers Mash", 2, models.UnitLegacyKg, "Mary Wanjiku", "2024-02-20")
	assert.NoError(t, err)

	recordSale(t, testCtx, models.RecordSaleRequest{
		CustomerName: "John Kamau",
		Date:         "2024-03-01",
		Items:        []models.SaleItemRequest{{Product: "Dairy Meal", Quantity: 3, Unit: models.UnitBags}},
	})

	// The legacy row comes back as a one-item transaction, after the newer
	// modern row.
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/shops/"+testCtx.TestShopID+"/sales",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var list models.SalesListResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	if assert.Len(t, list.Transactions, 2) {
		assert.False(t, list.Transactions[0].Legacy)

		legacy := list.Transactions[1]
		assert.Equal(t, legacyID, legacy.ID)
		assert.True(t, legacy.Legacy)
		assert.Equal(t, "2024-02-20", legacy.SaleDate)
		if assert.Len(t, legacy.Items, 1) {
			assert.Equal(t, "Layers Mash", legacy.Items[0].Product)
			assert.Equal(t, 2, legacy.Items[0].Quantity)
			assert.Equal(t, models.UnitLegacyKg, legacy.Items[0].Unit)
		}
	}
	assert.Equal(t, 5, list.TotalQuantity)

	// Legacy rows participate in filters like any other transaction
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/shops/"+testCtx.TestShopID+"/sales?product=Layers Mash",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	if assert.Len(t, list.Transactions, 1) {
		assert.Equal(t, legacyID, list.Transactions[0].ID)
	}

	// Admin edits reach the legacy table through the same endpoint
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/admin/sales/"+legacyID,
		models.UpdateSaleRequest{CustomerName: "John Kamau"},
		testutils.AuthHeaders(testCtx.AdminJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var name string
	assert.NoError(t, testCtx.DB.Get(&name,
		`SELECT customer_name FROM sales WHERE id = $1`, legacyID))
	assert.Equal(t, "John Kamau", name)

	// And deletes
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		"/api/admin/sales/"+legacyID,
		nil,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		"/api/admin/sales/"+legacyID,
		nil,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminSaleEdits(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	stockUp(t, testCtx, "Dairy Meal", 10)

	txn := recordSale(t, testCtx, models.RecordSaleRequest{
		CustomerName: "John Kamau",
		Date:         "2024-03-01",
		Items:        []models.SaleItemRequest{{Product: "Dairy Meal", Quantity: 3, Unit: models.UnitBags}},
	})

	// Admin fixes the customer name
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/admin/sales/"+txn.ID,
		models.UpdateSaleRequest{CustomerName: "Mary Wanjiku"},
		testutils.AuthHeaders(testCtx.AdminJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	// Sellers cannot reach the admin sale routes
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPut,
		"/api/admin/sales/"+txn.ID,
		models.UpdateSaleRequest{CustomerName: "Someone Else"},
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Deleting the sale does not restock inventory
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		"/api/admin/sales/"+txn.ID,
		nil,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/shops/"+testCtx.TestShopID+"/inventory",
		nil,
		testutils.AuthHeaders(testCtx.SellerJWT),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var inv models.InventoryResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &inv))
	assert.Equal(t, 7, inv.Items[0].Quantity)

	// Gone now
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodDelete,
		"/api/admin/sales/"+txn.ID,
		nil,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
