// Package stock holds the pure inventory reconciliation rules: low-stock
// status, replenishment targets, bag-to-kilogram conversion and the
// all-or-nothing stock decrement applied when a sale is recorded. Nothing in
// this package touches storage; callers load items, apply a rule and persist
// the result.
package stock

import (
	"errors"
	"fmt"

	"github.com/jkamau/duka-server/internal/models"
)

var (
	// ErrProductNotFound is returned when a sale or conversion references a
	// product the shop has no inventory record for.
	ErrProductNotFound = errors.New("product not found in inventory")

	// ErrInsufficientStock is returned when an operation would drive an
	// inventory quantity negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrUnsupportedUnit is returned for conversions from a unit with no
	// kilogram rate.
	ErrUnsupportedUnit = errors.New("unsupported unit for conversion")
)

// Kilograms per unit for convertible units. Only bagged stock converts; "kgs"
// is the target denomination, never a source.
var conversionRates = map[string]int{
	models.UnitBags: 70,
	models.Unit50Kg: 50,
}

// Defaults applied when a conversion has to create a fresh kgs record.
const (
	convertedThreshold       = 15
	convertedDesiredQuantity = 25
)

// IsLowStock reports whether the item is at or below its threshold.
func IsLowStock(item models.InventoryItem) bool {
	return item.Quantity <= item.Threshold
}

// ReplenishmentQuantity returns how much stock is needed to bring the item up
// to its target level, never negative. Items carrying a desired quantity use
// it as the target; older records without one fall back to twice the
// threshold, which was the target before desired quantities existed.
func ReplenishmentQuantity(item models.InventoryItem) int {
	target := item.Threshold * 2
	if item.DesiredQuantity != nil {
		target = *item.DesiredQuantity
	}
	if need := target - item.Quantity; need > 0 {
		return need
	}
	return 0
}

// ConversionRate returns the kilograms one unit of fromUnit represents.
func ConversionRate(fromUnit string) (int, error) {
	rate, ok := conversionRates[fromUnit]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedUnit, fromUnit)
	}
	return rate, nil
}

// Conversion describes the outcome of converting bagged stock to kilograms.
type Conversion struct {
	Withdrawn    int
	KgEquivalent int
	// Source is the decremented source record and Credit the kgs record the
	// equivalent lands in. Credit.ID is empty when no kgs record existed and
	// one must be created.
	Source models.InventoryItem
	Credit models.InventoryItem
}

// Convert plans a unit conversion over the given inventory: withdraw amount
// from the (product, fromUnit) record and credit the kilogram equivalent to
// the product's "kgs" record, creating one with default settings if the shop
// has none. The input slice is not modified.
func Convert(items []models.InventoryItem, product, fromUnit string, amount int) (*Conversion, error) {
	rate, err := ConversionRate(fromUnit)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: conversion amount must be positive", ErrInsufficientStock)
	}

	source, ok := findItem(items, product, fromUnit)
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrProductNotFound, product, fromUnit)
	}
	if source.Quantity < amount {
		return nil, fmt.Errorf("%w: %s has %d %s, want %d",
			ErrInsufficientStock, product, source.Quantity, fromUnit, amount)
	}

	conv := &Conversion{
		Withdrawn:    amount,
		KgEquivalent: amount * rate,
		Source:       source,
	}
	conv.Source.Quantity -= amount

	// Legacy "kg" records also count as a kilogram bucket for crediting.
	credit, ok := findItem(items, product, models.UnitKgs)
	if !ok {
		credit, ok = findItem(items, product, models.UnitLegacyKg)
	}
	if ok {
		conv.Credit = credit
		conv.Credit.Quantity += conv.KgEquivalent
	} else {
		desired := convertedDesiredQuantity
		conv.Credit = models.InventoryItem{
			ShopID:          source.ShopID,
			Product:         product,
			Quantity:        conv.KgEquivalent,
			Unit:            models.UnitKgs,
			Threshold:       convertedThreshold,
			DesiredQuantity: &desired,
		}
	}

	return conv, nil
}

// ApplySale validates every line item against the inventory and, only if all
// of them can be satisfied, returns a copy of the inventory with the
// decrements applied. The input is never modified: on any failure the caller
// keeps its original slice untouched.
func ApplySale(items []models.InventoryItem, lines []models.SaleItem) ([]models.InventoryItem, error) {
	updated := make([]models.InventoryItem, len(items))
	copy(updated, items)

	for _, line := range lines {
		idx := -1
		for i := range updated {
			if updated[i].Product == line.Product {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.Product)
		}
		if updated[idx].Quantity < line.Quantity {
			return nil, fmt.Errorf("%w: %s has %d, want %d",
				ErrInsufficientStock, line.Product, updated[idx].Quantity, line.Quantity)
		}
		updated[idx].Quantity -= line.Quantity
	}

	return updated, nil
}

// ValidUnit reports whether unit belongs to the accepted vocabulary. Units
// are compared exactly: every downstream comparison (conversion rates, item
// lookup, the database unit constraint) is case-sensitive, so anything not
// already lowercase is rejected here.
func ValidUnit(unit string) bool {
	switch unit {
	case models.UnitBags, models.UnitKgs, models.Unit50Kg, models.UnitLegacyKg:
		return true
	}
	return false
}

func findItem(items []models.InventoryItem, product, unit string) (models.InventoryItem, bool) {
	for _, item := range items {
		if item.Product == product && item.Unit == unit {
			return item, true
		}
	}
	return models.InventoryItem{}, false
}
