// Package store provides Catalog implementations.
package store

import (
	"context"
	"sync"

	"github.com/meridian/erp-core/finance"
	"github.com/meridian/erp-core/pricing"
)

// =============================================================================
// MEMORY CATALOG - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	products   map[finance.ProductID]pricing.Product
	customers  map[finance.CustomerID]pricing.Customer
	conditions map[finance.CustomerID]pricing.CommercialConditions
	promotions map[finance.ProductID][]pricing.Promotion
	tiers      map[finance.ProductID][]pricing.VolumeTier
	lists      map[finance.PriceListID]pricing.PriceList
	entries    map[entryKey]pricing.PriceListEntry
}

type entryKey struct {
	ListID    finance.PriceListID
	ProductID finance.ProductID
}

func NewMemory() *Memory {
	return &Memory{
		products:   make(map[finance.ProductID]pricing.Product),
		customers:  make(map[finance.CustomerID]pricing.Customer),
		conditions: make(map[finance.CustomerID]pricing.CommercialConditions),
		promotions: make(map[finance.ProductID][]pricing.Promotion),
		tiers:      make(map[finance.ProductID][]pricing.VolumeTier),
		lists:      make(map[finance.PriceListID]pricing.PriceList),
		entries:    make(map[entryKey]pricing.PriceListEntry),
	}
}

// =============================================================================
// WRITE SIDE - Catalog management (out of core scope, needed for setup)
// =============================================================================

func (m *Memory) PutProduct(p pricing.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *Memory) PutCustomer(c pricing.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
}

func (m *Memory) PutConditions(c pricing.CommercialConditions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conditions[c.CustomerID] = c
}

func (m *Memory) AddPromotion(p pricing.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promotions[p.ProductID] = append(m.promotions[p.ProductID], p)
}

func (m *Memory) AddVolumeTier(t pricing.VolumeTier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[t.ProductID] = append(m.tiers[t.ProductID], t)
}

func (m *Memory) PutPriceList(l pricing.PriceList) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[l.ID] = l
}

func (m *Memory) PutPriceListEntry(e pricing.PriceListEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entryKey{ListID: e.PriceListID, ProductID: e.ProductID}] = e
}

// =============================================================================
// READ SIDE - pricing.Catalog
// =============================================================================

func (m *Memory) Product(_ context.Context, id finance.ProductID) (*pricing.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, finance.ErrProductNotFound
	}
	return &p, nil
}

func (m *Memory) Customer(_ context.Context, id finance.CustomerID) (*pricing.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, finance.ErrCustomerNotFound
	}
	return &c, nil
}

func (m *Memory) Conditions(_ context.Context, id finance.CustomerID) (*pricing.CommercialConditions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conditions[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) Promotions(_ context.Context, id finance.ProductID) ([]pricing.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]pricing.Promotion, len(m.promotions[id]))
	copy(result, m.promotions[id])
	return result, nil
}

func (m *Memory) VolumeTiers(_ context.Context, id finance.ProductID) ([]pricing.VolumeTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]pricing.VolumeTier, len(m.tiers[id]))
	copy(result, m.tiers[id])
	return result, nil
}

func (m *Memory) PriceListEntry(_ context.Context, listID finance.PriceListID, productID finance.ProductID) (*pricing.PriceListEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[entryKey{ListID: listID, ProductID: productID}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}
