// Package models contains GORM-specific persistence models that map to
// database tables. They are kept separate from domain entities so the domain
// layer stays free of ORM concerns; repositories convert between the two.
//
// Structure:
//   - channel.go: channel accounts and connected shops
//   - binding.go: product bindings and per-shop sync rules
//   - job.go: sync job queue rows
//   - marketplace_order.go: raw marketplace orders and their lines
//   - erp.go: host-side mirror tables (products, partners, sales, stock, audit)
package models
