// Package salesview computes read-only views over sales transaction lists:
// filtering, sorting and date grouping for the dashboard tables. All
// functions treat their input as immutable and return fresh slices.
package salesview

import (
	"sort"
	"strings"

	"github.com/jkamau/duka-server/internal/models"
)

// Sort keys accepted by Sort.
const (
	SortByDate     = "date"
	SortByProduct  = "product"
	SortByCustomer = "customer"
)

// Criteria narrows a transaction list. Zero values (and "all" for the
// Product/Customer selectors) leave the corresponding clause open. Date
// bounds compare lexicographically, which is correct for ISO YYYY-MM-DD.
type Criteria struct {
	Search   string
	Product  string
	Customer string
	DateFrom string
	DateTo   string
}

// Filter returns the transactions matching every clause of the criteria.
func Filter(txns []models.SalesTransaction, c Criteria) []models.SalesTransaction {
	out := make([]models.SalesTransaction, 0, len(txns))
	for _, txn := range txns {
		if matches(txn, c) {
			out = append(out, txn)
		}
	}
	return out
}

func matches(txn models.SalesTransaction, c Criteria) bool {
	if c.Search != "" {
		needle := strings.ToLower(c.Search)
		found := strings.Contains(strings.ToLower(txn.CustomerName), needle)
		for _, item := range txn.Items {
			if found {
				break
			}
			found = strings.Contains(strings.ToLower(item.Product), needle)
		}
		if !found {
			return false
		}
	}

	if c.Product != "" && c.Product != "all" {
		found := false
		for _, item := range txn.Items {
			if item.Product == c.Product {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if c.Customer != "" && c.Customer != "all" && txn.CustomerName != c.Customer {
		return false
	}
	if c.DateFrom != "" && txn.SaleDate < c.DateFrom {
		return false
	}
	if c.DateTo != "" && txn.SaleDate > c.DateTo {
		return false
	}
	return true
}

// Sort orders a copy of the transactions by the given key: date is newest
// first, product and customer ascending. Ties keep their original relative
// order. Unknown keys return the list unchanged.
func Sort(txns []models.SalesTransaction, key string) []models.SalesTransaction {
	out := make([]models.SalesTransaction, len(txns))
	copy(out, txns)

	switch key {
	case SortByDate:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].SaleDate > out[j].SaleDate
		})
	case SortByProduct:
		sort.SliceStable(out, func(i, j int) bool {
			return firstProduct(out[i]) < firstProduct(out[j])
		})
	case SortByCustomer:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CustomerName < out[j].CustomerName
		})
	}
	return out
}

func firstProduct(txn models.SalesTransaction) string {
	if len(txn.Items) == 0 {
		return ""
	}
	return txn.Items[0].Product
}

// TotalQuantity sums line-item quantities across the transactions,
// optionally restricted to a single product name.
func TotalQuantity(txns []models.SalesTransaction, productFilter string) int {
	total := 0
	for _, txn := range txns {
		for _, item := range txn.Items {
			if productFilter != "" && productFilter != "all" && item.Product != productFilter {
				continue
			}
			total += item.Quantity
		}
	}
	return total
}

// GroupByDate buckets transactions by their exact date string, newest group
// first. Each group carries the summed line-item quantity (restricted to
// productFilter when set) and the distinct customer names in order of first
// appearance. Every input transaction lands in exactly one group.
func GroupByDate(txns []models.SalesTransaction, productFilter string) []models.SalesDateGroup {
	byDate := make(map[string]*models.SalesDateGroup)
	dates := make([]string, 0)

	for _, txn := range txns {
		group, ok := byDate[txn.SaleDate]
		if !ok {
			group = &models.SalesDateGroup{Date: txn.SaleDate}
			byDate[txn.SaleDate] = group
			dates = append(dates, txn.SaleDate)
		}
		group.Transactions = append(group.Transactions, txn)
		group.TotalQuantity += TotalQuantity([]models.SalesTransaction{txn}, productFilter)

		seen := false
		for _, name := range group.Customers {
			if name == txn.CustomerName {
				seen = true
				break
			}
		}
		if !seen {
			group.Customers = append(group.Customers, txn.CustomerName)
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	groups := make([]models.SalesDateGroup, 0, len(dates))
	for _, date := range dates {
		groups = append(groups, *byDate[date])
	}
	return groups
}
