// Package domain defines the persistence models for shops, flash-sale
// vouchers, and voucher orders. These types are mapped with GORM and form
// the authoritative data layer behind the cache and the order pipeline.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Shop represents a local business listed in the directory. Shop rows are
// the backing-store side of the read-through cache: reads go through the
// cache engine, updates write the row and evict the cached copy.
//
// Fields:
//   - ID: numeric primary key (auto-increment).
//   - Name: display name of the shop.
//   - Address / Area: location information shown in listings.
//   - AvgPrice: average spend per visit, in cents.
//   - Sold: lifetime sales counter shown on the shop page.
//   - Score: rating in tenths (e.g. 47 = 4.7).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Shop struct {
	ID        uint64         `json:"id"         gorm:"primaryKey;autoIncrement"`
	Name      string         `json:"name"       gorm:"type:varchar(128);not null;index"`
	Address   string         `json:"address"    gorm:"type:varchar(255);not null"`
	Area      string         `json:"area"       gorm:"type:varchar(64);index"`
	AvgPrice  int64          `json:"avg_price"`
	Sold      int64          `json:"sold"`
	Score     int            `json:"score"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Shop.
func (Shop) TableName() string { return "shops" }

// Voucher represents a flash-sale voucher: a finite stock sold only inside
// the [BeginTime, EndTime) window, at most one unit per user.
//
// Stock is authoritative here and mirrored into the cache store when the
// voucher is published. Under normal operation it only ever decreases, and
// only through the persistence worker's conditional update; it must never
// go negative.
type Voucher struct {
	ID        uint64         `json:"id"         gorm:"primaryKey;autoIncrement"`
	ShopID    uint64         `json:"shop_id"    gorm:"not null;index"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null"`
	PayValue  int64          `json:"pay_value"`  // price paid, in cents
	Stock     int64          `json:"stock"      gorm:"not null"`
	BeginTime time.Time      `json:"begin_time" gorm:"not null"`
	EndTime   time.Time      `json:"end_time"   gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Voucher.
func (Voucher) TableName() string { return "vouchers" }

// VoucherOrder is the durable record of one admitted purchase. Rows are
// created exclusively by the persistence worker, never mutated afterwards,
// and never deleted by this subsystem.
//
// Fields:
//   - ID: globally unique, time-sortable identifier minted by the ID
//     generator at admission time (not auto-increment).
//   - VoucherID / UserID: the (buyer, voucher) pair; the composite unique
//     index is the durable backstop for the one-per-user invariant.
//   - CreatedAt: persistence time, managed by GORM.
type VoucherOrder struct {
	ID        uint64    `json:"id"         gorm:"primaryKey;autoIncrement:false"`
	VoucherID uint64    `json:"voucher_id" gorm:"not null;index;uniqueIndex:ux_order_voucher_user"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index;uniqueIndex:ux_order_voucher_user"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for VoucherOrder.
func (VoucherOrder) TableName() string { return "voucher_orders" }
