package allocation

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// table maps each regime key to sleeve budget fractions. Every row sums to
// 1.0; the alternatives sleeve carries the volatility-hedge budget and is
// only deployed when the hedge selector is active.
var table = map[models.RegimeKey]models.AllocationVector{
	models.KeyRiskOn: {
		models.SleeveEquity:         0.50,
		models.SleeveFixedIncome:    0.05,
		models.SleeveCommodities:    0.20,
		models.SleeveCrypto:         0.05,
		models.SleeveManagedFutures: 0.20,
		models.SleeveAlternatives:   0.00,
	},
	models.KeyModerateRisk: {
		models.SleeveEquity:         0.33,
		models.SleeveFixedIncome:    0.10,
		models.SleeveCommodities:    0.20,
		models.SleeveCrypto:         0.05,
		models.SleeveManagedFutures: 0.30,
		models.SleeveAlternatives:   0.02,
	},
	models.KeyElevatedRisk: {
		models.SleeveEquity:         0.30,
		models.SleeveFixedIncome:    0.10,
		models.SleeveCommodities:    0.20,
		models.SleeveCrypto:         0.05,
		models.SleeveManagedFutures: 0.30,
		models.SleeveAlternatives:   0.05,
	},
	models.KeyRiskOff: {
		models.SleeveEquity:         0.10,
		models.SleeveFixedIncome:    0.10,
		models.SleeveCommodities:    0.25,
		models.SleeveCrypto:         0.01,
		models.SleeveManagedFutures: 0.45,
		models.SleeveAlternatives:   0.09,
	},
	models.KeyCrisis: {
		models.SleeveEquity:         0.00,
		models.SleeveFixedIncome:    0.15,
		models.SleeveCommodities:    0.20,
		models.SleeveCrypto:         0.00,
		models.SleeveManagedFutures: 0.50,
		models.SleeveAlternatives:   0.15,
	},
}

var colorKeys = map[models.RegimeColor]models.RegimeKey{
	models.ColorGreen:  models.KeyRiskOn,
	models.ColorYellow: models.KeyModerateRisk,
	models.ColorOrange: models.KeyElevatedRisk,
	models.ColorRed:    models.KeyRiskOff,
}

// Mapper resolves a regime snapshot to a sleeve budget vector.
type Mapper struct {
	cfg *config.AllocationConfig
}

func NewMapper(cfg *config.AllocationConfig) *Mapper {
	return &Mapper{cfg: cfg}
}

// ResolveKey applies the override ladder. VIX levels win over everything,
// then the long-MA side, then the regime color.
func (m *Mapper) ResolveKey(snapshot models.RegimeSnapshot) models.RegimeKey {
	switch {
	case snapshot.VIXClose > m.cfg.VIXCrisisThreshold:
		return models.KeyCrisis
	case snapshot.VIXClose > m.cfg.VIXRiskOffThreshold:
		return models.KeyRiskOff
	case !snapshot.AboveLongMA:
		return models.KeyRiskOff
	}
	if key, ok := colorKeys[snapshot.Color]; ok {
		return key
	}
	logger.Warn("unknown regime color, defaulting to moderate risk",
		zap.String("color", string(snapshot.Color)))
	return models.KeyModerateRisk
}

// Allocate returns an independent copy of the budget row for the snapshot.
func (m *Mapper) Allocate(snapshot models.RegimeSnapshot) (models.RegimeKey, models.AllocationVector) {
	key := m.ResolveKey(snapshot)
	return key, table[key].Clone()
}

// ValidateTable confirms every budget row covers all sleeves and sums to
// one. Called once at startup so a bad edit fails fast.
func ValidateTable() error {
	for key, row := range table {
		sum := 0.0
		for _, sleeve := range models.AllSleeves {
			frac, ok := row[sleeve]
			if !ok {
				return fmt.Errorf("allocation row %s is missing sleeve %s", key, sleeve)
			}
			if frac < 0 {
				return fmt.Errorf("allocation row %s has negative fraction for %s", key, sleeve)
			}
			sum += frac
		}
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("allocation row %s sums to %.6f, want 1.0", key, sum)
		}
	}
	return nil
}
