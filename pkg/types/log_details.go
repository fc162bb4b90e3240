package types

// LogDetails is the typed schema behind group_buy_logs.details. Every entry
// records the group buy version observed by the write; the remaining fields
// depend on the action.
type LogDetails struct {
	Action       string `json:"action"`
	Version      int    `json:"version"`
	MerchantName string `json:"merchant_name,omitempty"`
	PostID       string `json:"post_id,omitempty"`
	ItemsCount   int    `json:"items_count,omitempty"`
	Buyer        string `json:"buyer,omitempty"`
	Item         string `json:"item,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`
	OldQuantity  int    `json:"old_quantity,omitempty"`
	NewQuantity  int    `json:"new_quantity,omitempty"`
	Affected     int    `json:"affected,omitempty"`
}
