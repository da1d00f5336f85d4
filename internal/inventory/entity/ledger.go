package entity

import (
	"sort"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/shopspring/decimal"
)

// Line is one material quantity in a reservation request.
type Line struct {
	MaterialID string
	Quantity   decimal.Decimal
}

func (m *Material) recompute() {
	m.AvailableStock = m.CurrentStock.Sub(m.ReservedStock)
}

// QuantityScale 库存数量小数位，与 decimal(14,4) 列一致
const QuantityScale = 4

// CheckScale rejects values with more fractional digits than the stock
// columns store. Postgres would otherwise round each column on its own.
func CheckScale(field string, q decimal.Decimal) error {
	if !q.Equal(q.Truncate(QuantityScale)) {
		return apperr.Validation("%s %s has more than %d decimal places", field, q.String(), QuantityScale)
	}
	return nil
}

func requirePositive(q decimal.Decimal) error {
	if !q.IsPositive() {
		return apperr.Validation("quantity must be greater than 0")
	}
	return CheckScale("quantity", q)
}

func shortage(materialID string, required, available decimal.Decimal) error {
	return apperr.InsufficientStock("insufficient stock for %s: required %s, available %s",
		materialID, required.StringFixed(2), available.StringFixed(2))
}

// AddStock 入库
func (m *Material) AddStock(q decimal.Decimal) error {
	if err := requirePositive(q); err != nil {
		return err
	}
	m.CurrentStock = m.CurrentStock.Add(q)
	m.recompute()
	return nil
}

// ConsumeStock 直接领用。只能消耗可用量，已预留部分需通过 Issue 发料。
func (m *Material) ConsumeStock(q decimal.Decimal) error {
	if err := requirePositive(q); err != nil {
		return err
	}
	if q.GreaterThan(m.AvailableStock) {
		return shortage(m.MaterialID, q, m.AvailableStock)
	}
	m.CurrentStock = m.CurrentStock.Sub(q)
	m.recompute()
	return nil
}

// Reserve moves q from available to reserved.
func (m *Material) Reserve(q decimal.Decimal) error {
	if err := requirePositive(q); err != nil {
		return err
	}
	if q.GreaterThan(m.AvailableStock) {
		return shortage(m.MaterialID, q, m.AvailableStock)
	}
	m.ReservedStock = m.ReservedStock.Add(q)
	m.recompute()
	return nil
}

// Release moves q from reserved back to available.
func (m *Material) Release(q decimal.Decimal) error {
	if err := requirePositive(q); err != nil {
		return err
	}
	if q.GreaterThan(m.ReservedStock) {
		return apperr.Conflict("cannot release %s of %s: only %s reserved",
			q.StringFixed(2), m.MaterialID, m.ReservedStock.StringFixed(2))
	}
	m.ReservedStock = m.ReservedStock.Sub(q)
	m.recompute()
	return nil
}

// Issue consumes q out of the reserved quantity.
func (m *Material) Issue(q decimal.Decimal) error {
	if err := requirePositive(q); err != nil {
		return err
	}
	if q.GreaterThan(m.ReservedStock) {
		return apperr.Conflict("cannot issue %s of %s: only %s reserved",
			q.StringFixed(2), m.MaterialID, m.ReservedStock.StringFixed(2))
	}
	m.ReservedStock = m.ReservedStock.Sub(q)
	m.CurrentStock = m.CurrentStock.Sub(q)
	m.recompute()
	return nil
}

// Adjust sets current stock to an audited count. The count may not drop
// below what is already reserved.
func (m *Material) Adjust(newCurrent decimal.Decimal) (decimal.Decimal, error) {
	if newCurrent.IsNegative() {
		return decimal.Zero, apperr.Validation("current_stock must not be negative")
	}
	if err := CheckScale("current_stock", newCurrent); err != nil {
		return decimal.Zero, err
	}
	if newCurrent.LessThan(m.ReservedStock) {
		return decimal.Zero, apperr.Conflict("current_stock %s is below reserved %s for %s",
			newCurrent.StringFixed(2), m.ReservedStock.StringFixed(2), m.MaterialID)
	}
	delta := newCurrent.Sub(m.CurrentStock)
	m.CurrentStock = newCurrent
	m.recompute()
	return delta, nil
}

// NormalizeLines validates request lines, merges duplicate materials and
// returns them sorted by material id. The order is the lock order.
func NormalizeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("at least one item is required")
	}
	merged := make(map[string]decimal.Decimal, len(lines))
	for _, l := range lines {
		if l.MaterialID == "" {
			return nil, apperr.Validation("material_id is required")
		}
		if !l.Quantity.IsPositive() {
			return nil, apperr.Validation("quantity for %s must be greater than 0", l.MaterialID)
		}
		if err := CheckScale("quantity for "+l.MaterialID, l.Quantity); err != nil {
			return nil, err
		}
		merged[l.MaterialID] = merged[l.MaterialID].Add(l.Quantity)
	}
	out := make([]Line, 0, len(merged))
	for id, q := range merged {
		out = append(out, Line{MaterialID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialID < out[j].MaterialID })
	return out, nil
}

// ApplyReservation reserves every line or none. All lines are checked
// against the materials before any of them is mutated.
func ApplyReservation(materials map[string]*Material, lines []Line) error {
	need := make(map[string]decimal.Decimal, len(lines))
	for _, l := range lines {
		m, ok := materials[l.MaterialID]
		if !ok {
			return apperr.NotFound("material %s not found", l.MaterialID)
		}
		if err := requirePositive(l.Quantity); err != nil {
			return err
		}
		need[l.MaterialID] = need[l.MaterialID].Add(l.Quantity)
		if need[l.MaterialID].GreaterThan(m.AvailableStock) {
			return shortage(l.MaterialID, need[l.MaterialID], m.AvailableStock)
		}
	}
	for _, l := range lines {
		if err := materials[l.MaterialID].Reserve(l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// ReverseReservation releases every line of a reservation, or none.
func ReverseReservation(materials map[string]*Material, lines []Line) error {
	return applyReserved(materials, lines, (*Material).Release)
}

// IssueReservation consumes every reserved line, or none.
func IssueReservation(materials map[string]*Material, lines []Line) error {
	return applyReserved(materials, lines, (*Material).Issue)
}

func applyReserved(materials map[string]*Material, lines []Line, op func(*Material, decimal.Decimal) error) error {
	// a reservation may list a material once per line; check the totals
	need := make(map[string]decimal.Decimal, len(lines))
	for _, l := range lines {
		m, ok := materials[l.MaterialID]
		if !ok {
			return apperr.NotFound("material %s not found", l.MaterialID)
		}
		if err := requirePositive(l.Quantity); err != nil {
			return err
		}
		need[l.MaterialID] = need[l.MaterialID].Add(l.Quantity)
		if need[l.MaterialID].GreaterThan(m.ReservedStock) {
			return apperr.Conflict("reserved quantity of %s is inconsistent with reservation", l.MaterialID)
		}
	}
	for _, l := range lines {
		if err := op(materials[l.MaterialID], l.Quantity); err != nil {
			return err
		}
	}
	return nil
}
