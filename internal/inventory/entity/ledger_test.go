package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newMaterial(id string, current, reserved int64) *Material {
	m := &Material{MaterialID: id, CurrentStock: d(current), ReservedStock: d(reserved)}
	m.recompute()
	return m
}

func TestReserveAndReleaseMAT001(t *testing.T) {
	mat := newMaterial("MAT001", 500, 50)
	materials := map[string]*Material{"MAT001": mat}

	require.NoError(t, ApplyReservation(materials, []Line{{MaterialID: "MAT001", Quantity: d(100)}}))
	assert.True(t, mat.ReservedStock.Equal(d(150)))
	assert.True(t, mat.AvailableStock.Equal(d(250)))

	res := &Reservation{BatchID: "B1", Items: []ReservationItem{{MaterialID: "MAT001", QuantityReserved: d(100)}}}
	require.NoError(t, ReverseReservation(materials, res.Lines()))
	assert.True(t, mat.ReservedStock.Equal(d(50)))
	assert.True(t, mat.AvailableStock.Equal(d(450)))
}

func TestReserveInsufficientMAT002(t *testing.T) {
	mat := newMaterial("MAT002", 200, 20) // available 180
	err := ApplyReservation(map[string]*Material{"MAT002": mat}, []Line{{MaterialID: "MAT002", Quantity: d(200)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
	assert.Contains(t, err.Error(), "required 200.00, available 180.00")
	assert.True(t, mat.ReservedStock.Equal(d(20)))
	assert.True(t, mat.AvailableStock.Equal(d(180)))
}

func TestReservationIsAllOrNothing(t *testing.T) {
	a := newMaterial("A", 100, 0)
	b := newMaterial("B", 10, 0)
	materials := map[string]*Material{"A": a, "B": b}

	err := ApplyReservation(materials, []Line{{MaterialID: "A", Quantity: d(50)}, {MaterialID: "B", Quantity: d(11)}})
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
	assert.True(t, a.ReservedStock.IsZero())

	err = ApplyReservation(materials, []Line{{MaterialID: "A", Quantity: d(50)}, {MaterialID: "X", Quantity: d(1)}})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.True(t, a.ReservedStock.IsZero())

	// duplicates are checked by their total
	err = ApplyReservation(materials, []Line{{MaterialID: "B", Quantity: d(6)}, {MaterialID: "B", Quantity: d(6)}})
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
	assert.True(t, b.ReservedStock.IsZero())
}

func TestConsumeBeyondStockFails(t *testing.T) {
	m := newMaterial("MAT003", 100, 30)

	err := m.ConsumeStock(d(101))
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
	err = m.ConsumeStock(d(71))
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
	assert.True(t, m.CurrentStock.Equal(d(100)))

	require.NoError(t, m.ConsumeStock(d(70)))
	assert.True(t, m.CurrentStock.Equal(d(30)))
	assert.True(t, m.AvailableStock.IsZero())
}

func TestIssueConsumesReserved(t *testing.T) {
	m := newMaterial("MAT004", 100, 0)
	materials := map[string]*Material{"MAT004": m}
	lines := []Line{{MaterialID: "MAT004", Quantity: d(40)}}

	require.NoError(t, ApplyReservation(materials, lines))
	require.NoError(t, IssueReservation(materials, lines))
	assert.True(t, m.CurrentStock.Equal(d(60)))
	assert.True(t, m.ReservedStock.IsZero())
	assert.True(t, m.AvailableStock.Equal(d(60)))

	err := IssueReservation(materials, lines)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestAdjust(t *testing.T) {
	m := newMaterial("MAT005", 100, 40)

	_, err := m.Adjust(d(39))
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	_, err = m.Adjust(d(-1))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	delta, err := m.Adjust(d(120))
	require.NoError(t, err)
	assert.True(t, delta.Equal(d(20)))
	assert.True(t, m.AvailableStock.Equal(d(80)))
}

func TestQuantitiesMustBePositive(t *testing.T) {
	m := newMaterial("MAT006", 10, 0)
	for _, q := range []decimal.Decimal{decimal.Zero, d(-5)} {
		assert.True(t, errors.Is(m.AddStock(q), apperr.ErrValidation))
		assert.True(t, errors.Is(m.ConsumeStock(q), apperr.ErrValidation))
		assert.True(t, errors.Is(m.Reserve(q), apperr.ErrValidation))
	}
}

func TestNormalizeLines(t *testing.T) {
	lines, err := NormalizeLines([]Line{
		{MaterialID: "MAT002", Quantity: d(5)},
		{MaterialID: "MAT001", Quantity: d(2)},
		{MaterialID: "MAT002", Quantity: decimal.RequireFromString("0.5")},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "MAT001", lines[0].MaterialID)
	assert.Equal(t, "MAT002", lines[1].MaterialID)
	assert.Equal(t, "5.5", lines[1].Quantity.String())

	_, err = NormalizeLines(nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = NormalizeLines([]Line{{MaterialID: "", Quantity: d(1)}})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = NormalizeLines([]Line{{MaterialID: "M", Quantity: decimal.Zero}})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestIsLowStock(t *testing.T) {
	m := newMaterial("MAT007", 10, 5)
	m.MinimumStock = d(6)
	assert.True(t, m.IsLowStock())
	m.MinimumStock = d(5)
	assert.False(t, m.IsLowStock())
	m.MinimumStock = decimal.Zero
	assert.False(t, m.IsLowStock())
}

func checkInvariants(t *rapid.T, m *Material) {
	if !m.AvailableStock.Equal(m.CurrentStock.Sub(m.ReservedStock)) {
		t.Fatalf("%s: available %s != current %s - reserved %s", m.MaterialID, m.AvailableStock, m.CurrentStock, m.ReservedStock)
	}
	if m.ReservedStock.GreaterThan(m.CurrentStock) {
		t.Fatalf("%s: reserved %s > current %s", m.MaterialID, m.ReservedStock, m.CurrentStock)
	}
	if m.ReservedStock.IsNegative() || m.AvailableStock.IsNegative() {
		t.Fatalf("%s: negative stock %+v", m.MaterialID, m)
	}
}

func snapshot(materials map[string]*Material) map[string]Material {
	out := make(map[string]Material, len(materials))
	for k, v := range materials {
		out[k] = *v
	}
	return out
}

func TestLedgerInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := []string{"M1", "M2", "M3"}
		materials := make(map[string]*Material, len(ids))
		for _, id := range ids {
			materials[id] = newMaterial(id, rapid.Int64Range(0, 500).Draw(t, "initial_"+id), 0)
		}
		var reservations [][]Line

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom(ids).Draw(t, fmt.Sprintf("id_%d", i))
			q := d(rapid.Int64Range(1, 200).Draw(t, fmt.Sprintf("q_%d", i)))
			m := materials[id]

			switch rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("op_%d", i)) {
			case 0:
				_ = m.AddStock(q)
			case 1:
				before := *m
				if err := m.ConsumeStock(q); err != nil {
					if !m.CurrentStock.Equal(before.CurrentStock) {
						t.Fatalf("failed consume changed stock")
					}
				}
			case 2:
				n := rapid.IntRange(1, 3).Draw(t, fmt.Sprintf("lines_%d", i))
				lines := make([]Line, 0, n)
				for j := 0; j < n; j++ {
					lines = append(lines, Line{
						MaterialID: rapid.SampledFrom(ids).Draw(t, fmt.Sprintf("line_%d_%d", i, j)),
						Quantity:   d(rapid.Int64Range(1, 150).Draw(t, fmt.Sprintf("lq_%d_%d", i, j))),
					})
				}
				before := snapshot(materials)
				if err := ApplyReservation(materials, lines); err != nil {
					for k, v := range before {
						if !materials[k].ReservedStock.Equal(v.ReservedStock) || !materials[k].AvailableStock.Equal(v.AvailableStock) {
							t.Fatalf("failed reservation mutated %s", k)
						}
					}
				} else {
					reservations = append(reservations, lines)
				}
			case 3:
				if len(reservations) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(reservations)-1).Draw(t, fmt.Sprintf("release_%d", i))
				if err := ReverseReservation(materials, reservations[idx]); err != nil {
					t.Fatalf("release of a live reservation failed: %v", err)
				}
				reservations = append(reservations[:idx], reservations[idx+1:]...)
			}

			for _, m := range materials {
				checkInvariants(t, m)
			}
		}
	})
}

func TestReleaseThenReserveRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		current := rapid.Int64Range(1, 1000).Draw(t, "current")
		q := rapid.Int64Range(1, current).Draw(t, "q")
		m := newMaterial("RT", current, 0)
		materials := map[string]*Material{"RT": m}
		lines := []Line{{MaterialID: "RT", Quantity: d(q)}}

		if err := ApplyReservation(materials, lines); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		reserved := *m
		if err := ReverseReservation(materials, lines); err != nil {
			t.Fatalf("release: %v", err)
		}
		if err := ApplyReservation(materials, lines); err != nil {
			t.Fatalf("reserve again: %v", err)
		}
		if !m.ReservedStock.Equal(reserved.ReservedStock) || !m.AvailableStock.Equal(reserved.AvailableStock) {
			t.Fatalf("round trip changed state: %+v vs %+v", m, reserved)
		}
	})
}

func TestSubPrecisionQuantitiesRejected(t *testing.T) {
	tiny := decimal.RequireFromString("0.00001")

	_, err := NormalizeLines([]Line{{MaterialID: "MAT001", Quantity: tiny}})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "line below column precision")

	m := newMaterial("MAT001", 1, 0)
	assert.True(t, errors.Is(m.AddStock(decimal.RequireFromString("0.00011")), apperr.ErrValidation))
	assert.True(t, errors.Is(m.Reserve(tiny), apperr.ErrValidation))
	_, err = m.Adjust(decimal.RequireFromString("1.00001"))
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.True(t, m.CurrentStock.Equal(d(1)))
	assert.True(t, m.ReservedStock.IsZero())

	// trailing zeros beyond the scale are fine
	lines, err := NormalizeLines([]Line{{MaterialID: "MAT001", Quantity: decimal.RequireFromString("0.50000")}})
	require.NoError(t, err)
	require.NoError(t, ApplyReservation(map[string]*Material{"MAT001": m}, lines))
	require.NoError(t, m.AddStock(decimal.RequireFromString("0.0001")))
	assert.Equal(t, "1.0001", m.CurrentStock.String())
}

// stored mimics a decimal(14,4) column write followed by a read.
func stored(m *Material) *Material {
	return &Material{
		MaterialID:     m.MaterialID,
		CurrentStock:   m.CurrentStock.Round(QuantityScale),
		ReservedStock:  m.ReservedStock.Round(QuantityScale),
		AvailableStock: m.AvailableStock.Round(QuantityScale),
	}
}

func TestStoredRowRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// quantities carry up to six fractional digits; only scale-4 ones are accepted
		current := decimal.New(rapid.Int64Range(1, 10_000_000).Draw(t, "current"), -4)
		q := decimal.New(rapid.Int64Range(1, 1_000_000).Draw(t, "q"), -int32(rapid.IntRange(0, 6).Draw(t, "exp")))

		m := newMaterial("RT", 0, 0)
		m.CurrentStock = current
		m.recompute()

		lines, err := NormalizeLines([]Line{{MaterialID: "RT", Quantity: q}})
		if !q.Equal(q.Truncate(QuantityScale)) {
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("quantity %s accepted beyond scale", q)
			}
			return
		}
		if err != nil {
			t.Fatalf("normalize %s: %v", q, err)
		}
		if err := ApplyReservation(map[string]*Material{"RT": m}, lines); err != nil {
			if errors.Is(err, apperr.ErrInsufficientStock) {
				return
			}
			t.Fatalf("reserve: %v", err)
		}

		row := stored(m)
		if !row.AvailableStock.Equal(row.CurrentStock.Sub(row.ReservedStock)) {
			t.Fatalf("stored row inconsistent: %+v", row)
		}
		item := ReservationItem{MaterialID: "RT", QuantityReserved: lines[0].Quantity.Round(QuantityScale)}
		if err := ReverseReservation(map[string]*Material{"RT": row}, []Line{{MaterialID: item.MaterialID, Quantity: item.QuantityReserved}}); err != nil {
			t.Fatalf("release after store: %v", err)
		}
		if !row.ReservedStock.IsZero() || !row.AvailableStock.Equal(current) {
			t.Fatalf("release did not restore stock: %+v", row)
		}
	})
}
