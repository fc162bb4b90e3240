package enums

// LogAction tags an audit log entry. The column is free-form text; these are
// the tags this codebase writes.
type LogAction string

const (
	LogActionCreated          LogAction = "created"
	LogActionAnnounced        LogAction = "announced"
	LogActionItemsUpdated     LogAction = "items_updated"
	LogActionClosed           LogAction = "closed"
	LogActionOrderRegistered  LogAction = "order_registered"
	LogActionOrderCancelled   LogAction = "order_cancelled"
	LogActionShortageAdjusted LogAction = "shortage_adjusted"
)

// String implements fmt.Stringer.
func (a LogAction) String() string {
	return string(a)
}
