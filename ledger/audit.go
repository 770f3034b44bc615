package ledger

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func (m *Manager) auditEntry(ctx context.Context, action AuditAction, details string) AuditLogEntry {
	return AuditLogEntry{
		Timestamp: m.now(),
		User:      ActorFromContext(ctx),
		Action:    action,
		Details:   details,
	}
}

// auditField is one entry of the fixed field list DescribeChanges walks.
type auditField struct {
	label string
	value func(Order) string
}

var auditFields = []auditField{
	{"OS", func(o Order) string { return fmt.Sprintf("%d", o.Number) }},
	{"Date", func(o Order) string { return o.EntryDate.String() }},
	{"Customer", func(o Order) string { return o.CustomerName }},
	{"Brand", func(o Order) string { return o.BrandName }},
	{"Value", func(o Order) string { return o.ServiceValue.StringFixed(MoneyPlaces) }},
	{"Payment", func(o Order) string { return orNone(o.PaymentMethod) }},
	{"Status", func(o Order) string { return string(o.Status) }},
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// DescribeChanges lists every field that differs between old and updated as
// "Field: old -> new", in a fixed order. Derived fields (commission, period,
// paid-at) are not listed; they follow from the ones that are.
func DescribeChanges(old, updated Order) []string {
	var changes []string
	for _, f := range auditFields {
		before, after := f.value(old), f.value(updated)
		if before != after {
			changes = append(changes, fmt.Sprintf("%s: %s -> %s", f.label, before, after))
		}
	}
	return changes
}

// JoinChanges renders DescribeChanges output as audit details.
func JoinChanges(changes []string) string { return strings.Join(changes, ", ") }
