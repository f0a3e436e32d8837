package models

// 广告状态
const (
	ListingStatusActive   = "active"
	ListingStatusInactive = "inactive"
	ListingStatusSold     = "sold"
)

// Listing 广告（私信只读取必要字段）
type Listing struct {
	ID      string   `json:"id" db:"id"`
	OwnerID string   `json:"user_id" db:"user_id"`
	Title   string   `json:"title" db:"title"`
	Price   float64  `json:"price" db:"price"`
	Images  []string `json:"images" db:"images"`
	Status  string   `json:"status" db:"status"`
}

// IsActive 广告是否处于可联系状态
func (l *Listing) IsActive() bool {
	return l != nil && l.Status == ListingStatusActive
}
