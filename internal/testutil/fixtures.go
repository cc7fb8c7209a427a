package testutil

import (
	"time"
	_ "time/tzdata" // Asia/Jerusalem on hosts without zoneinfo

	"github.com/leapstack-labs/leapask/pkg/core"
)

// FactorySchema returns the allowed schema of a small plant database.
func FactorySchema() *core.AllowedSchema {
	return core.NewAllowedSchema(map[string][]string{
		"employees":        {"id", "full_name", "username", "is_active"},
		"machines":         {"id", "name", "is_active"},
		"parts":            {"id", "drawing_number", "name"},
		"lots":             {"id", "lot_number", "part_id", "status", "created_at"},
		"setup_jobs":       {"id", "employee_id", "machine_id", "part_id", "lot_id", "status", "created_at"},
		"batches":          {"id", "lot_id", "status", "quantity", "created_at"},
		"batch_operations": {"id", "batch_id", "employee_id", "machine_id", "status", "created_at"},
		"cards":            {"id", "card_number", "batch_id", "status"},
	})
}

// FactoryCatalog returns entity lists matching FactorySchema.
func FactoryCatalog() *core.Catalog {
	return &core.Catalog{
		Employees: []core.Entity{
			{ID: 1, Name: "Dana Levi"},
			{ID: 2, Name: "Igor Petrov"},
			{ID: 3, Name: "Иван Сидоров"},
		},
		Machines: []core.Entity{
			{ID: 7, Name: "M_2_Nakamura-NTY3"},
			{ID: 8, Name: "DMG Mori 5X"},
		},
		Parts: []core.Entity{
			{ID: 11, Name: "1001-02"},
			{ID: 12, Name: "2044A"},
		},
		Lots: []core.Entity{
			{ID: 21, Name: "L-2024-15"},
			{ID: 22, Name: "5523"},
		},
	}
}

// Jerusalem is the plant timezone used across tests.
func Jerusalem() *time.Location {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		panic(err)
	}
	return loc
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
