package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/inventory/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlertSource struct {
	materials []entity.Material
	err       error
}

func (f fakeAlertSource) GetAlerts(ctx context.Context) ([]entity.Material, error) {
	return f.materials, f.err
}

func stockMaterial(id string, current, reserved, minimum string) entity.Material {
	m := entity.Material{
		MaterialID:    id,
		Name:          "Material " + id,
		UnitOfMeasure: "kg",
		CurrentStock:  decimal.RequireFromString(current),
		ReservedStock: decimal.RequireFromString(reserved),
		MinimumStock:  decimal.RequireFromString(minimum),
		StandardCost:  decimal.RequireFromString("2.5"),
	}
	m.AvailableStock = m.CurrentStock.Sub(m.ReservedStock)
	return m
}

func TestLowStockScan(t *testing.T) {
	scanner := NewLowStockScanner(fakeAlertSource{materials: []entity.Material{
		stockMaterial("MAT002", "200", "20", "250"),
	}}, nil, nil)

	alerts, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "MAT002", alerts[0].MaterialID)
	assert.Equal(t, "180.00", alerts[0].AvailableStock)
	assert.Equal(t, "250.00", alerts[0].MinimumStock)

	failing := NewLowStockScanner(fakeAlertSource{err: errors.New("db down")}, nil, nil)
	_, err = failing.Scan(context.Background())
	assert.Error(t, err)
}

func TestLowStockScannerRejectsBadSchedule(t *testing.T) {
	scanner := NewLowStockScanner(fakeAlertSource{}, nil, nil)
	assert.Error(t, scanner.Start("not a cron spec"))

	require.NoError(t, scanner.Start("*/5 * * * *"))
	scanner.Stop()
}

func TestBuildStockWorkbook(t *testing.T) {
	f, err := BuildStockWorkbook([]entity.Material{
		stockMaterial("MAT001", "500", "150", "100"),
		stockMaterial("MAT002", "200", "20", "250"),
	})
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("Stock", "A1")
	require.NoError(t, err)
	assert.Equal(t, "物料编号", header)

	id, _ := f.GetCellValue("Stock", "A2")
	assert.Equal(t, "MAT001", id)

	available, _ := f.GetCellValue("Stock", "G2")
	assert.Equal(t, "350.00", available)

	value, _ := f.GetCellValue("Stock", "J3")
	assert.Equal(t, "500.00", value)

	alert, _ := f.GetCellValue("Stock", "L3")
	assert.Equal(t, "低库存", alert)
	alert, _ = f.GetCellValue("Stock", "L2")
	assert.Equal(t, "", alert)
}
