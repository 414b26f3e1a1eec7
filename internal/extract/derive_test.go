package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

func TestDerive(t *testing.T) {
	t.Run("computes duration and c-rate", func(t *testing.T) {
		rec := &domain.SpecificationRecord{
			NominalPowerMW:   domain.Float(2),
			NominalEnergyMWh: domain.Float(8),
		}
		warnings := Derive(rec)

		assert.Empty(t, warnings)
		require.NotNil(t, rec.DischargeDurationH)
		assert.Equal(t, 4.0, *rec.DischargeDurationH)
		assert.Equal(t, 0.25, *rec.CRate)
	})

	t.Run("computed duration wins with a warning", func(t *testing.T) {
		rec := &domain.SpecificationRecord{
			NominalPowerMW:     domain.Float(2),
			NominalEnergyMWh:   domain.Float(8),
			DischargeDurationH: domain.Float(2),
		}
		warnings := Derive(rec)

		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "2.00 h")
		assert.Contains(t, warnings[0], "4.00 h")
		assert.Equal(t, 4.0, *rec.DischargeDurationH)
	})

	t.Run("small disagreement is silent", func(t *testing.T) {
		rec := &domain.SpecificationRecord{
			NominalPowerMW:     domain.Float(2),
			NominalEnergyMWh:   domain.Float(8),
			DischargeDurationH: domain.Float(4.05),
		}
		assert.Empty(t, Derive(rec))
		assert.Equal(t, 4.0, *rec.DischargeDurationH)
	})

	t.Run("stated duration alone sets c-rate", func(t *testing.T) {
		rec := &domain.SpecificationRecord{DischargeDurationH: domain.Float(2)}
		assert.Empty(t, Derive(rec))
		assert.Equal(t, 0.5, *rec.CRate)
	})

	t.Run("nothing to derive", func(t *testing.T) {
		rec := &domain.SpecificationRecord{NominalPowerMW: domain.Float(2)}
		assert.Empty(t, Derive(rec))
		assert.Nil(t, rec.DischargeDurationH)
		assert.Nil(t, rec.CRate)
	})
}

func TestDerive_Idempotent(t *testing.T) {
	rec := &domain.SpecificationRecord{
		NominalPowerMW:   domain.Float(3),
		NominalEnergyMWh: domain.Float(10),
	}
	Derive(rec)
	first := *rec.DischargeDurationH

	for i := 0; i < 5; i++ {
		assert.Empty(t, Derive(rec))
		assert.Equal(t, first, *rec.DischargeDurationH)
	}
}

func TestClassifyApplications(t *testing.T) {
	tests := []struct {
		hours float64
		want  []string
	}{
		{0.5, []string{domain.ApplicationFrequencyRegulation}},
		{1, []string{domain.ApplicationFrequencyRegulation, domain.ApplicationEnergyArbitrage}},
		{3, []string{domain.ApplicationEnergyArbitrage, domain.ApplicationPeakShaving}},
		{4, []string{domain.ApplicationEnergyArbitrage, domain.ApplicationPeakShaving, domain.ApplicationBackupPower}},
		{8, []string{domain.ApplicationBackupPower}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyApplications(tt.hours), "%.1f h", tt.hours)
	}
}

func TestNormalizeChemistry(t *testing.T) {
	tests := map[string]string{
		"LiFePO4":                "LFP",
		"Lithium Iron Phosphate": "LFP",
		"lfp":                    "LFP",
		"Lithium Titanate":       "LTO",
		"NMC 811":                "NMC",
		"NCA":                    "NCA",
		"  Sodium-ion ":          "Sodium-ion",
		"":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeChemistry(in), in)
	}
}
