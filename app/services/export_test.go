package services

import "context"

// SetStockChanged replaces the hook run after a paid order decrements stock.
func SetStockChanged(s *OrderService, fn func(context.Context)) { s.stockChanged = fn }
