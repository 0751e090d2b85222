package config

import (
	"os"
	"path/filepath"
	"sectorrebalance/internal/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults when no path", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		require.Equal(t, domain.StrategySimple, cfg.Allocation.Strategy)
		require.Equal(t, 3, cfg.Allocation.TopPerSector)
		require.Equal(t, 0.10, cfg.Trading.MinTurnoverRatio)
		require.Equal(t, "1000000", cfg.Trading.MarketBudgets[domain.MarketUS].String())
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strategy.json")
		err := os.WriteFile(path, []byte(`{
			"etfMap": {"financials": {"US": "XLF", "HK": "2800.HK", "inverseUS": "SKF"}},
			"allocation": {"strategy": "conviction-weighted", "topPerSector": 5},
			"trading": {"marketBudgets": {"US": 600000}, "minTradeValue": "1000", "allowedMarkets": ["US"]}
		}`), 0644)
		require.NoError(t, err)

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, domain.StrategyConvictionWeighted, cfg.Allocation.Strategy)
		require.Equal(t, 5, cfg.Allocation.TopPerSector)
		require.Equal(t, "600000", cfg.Trading.MarketBudgets[domain.MarketUS].String())
		require.Equal(t, "1000", cfg.Trading.MinTradeValue.String())
		require.Equal(t, "XLF", cfg.EtfsForSector("Financials").Long(domain.MarketUS))
		require.Equal(t, "SKF", cfg.EtfsForSector("financials").Inverse())
		require.True(t, cfg.AllowedMarkets().Allows(domain.MarketUS))
		require.False(t, cfg.AllowedMarkets().Allows(domain.MarketHK))
	})

	t.Run("validation errors surface before use", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strategy.json")
		err := os.WriteFile(path, []byte(`{
			"marketWeights": {"default": {"US": -1, "JP": 1}},
			"allocation": {"strategy": "yolo", "topPerSector": 0},
			"trading": {"minTurnoverRatio": 2}
		}`), 0644)
		require.NoError(t, err)

		_, err = Load(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
		require.Contains(t, err.Error(), "unknown allocation strategy")
		require.Contains(t, err.Error(), "minTurnoverRatio")
		require.Contains(t, err.Error(), "unknown market")
	})
}

func TestStrategyConfig_lookups(t *testing.T) {
	cfg := Default()
	cfg.EtfMap["health"] = EtfMapping{US: "XLV"}
	cfg.MarketWeights["health"] = map[domain.Market]float64{domain.MarketUS: 1}
	cfg.TickerSectors["jnj"] = "health_care"

	require.Equal(t, "health", cfg.NormalizeSector("Health_Care"))
	require.Equal(t, "XLV", cfg.EtfsForSector("health_care").US)
	require.Equal(t, map[domain.Market]float64{domain.MarketUS: 1}, cfg.MarketWeightsForSector("healthcare"))
	require.Equal(t, DefaultMarketWeights(), cfg.MarketWeightsForSector("energy"))

	sector, ok := cfg.SectorForTicker("JNJ")
	require.True(t, ok)
	require.Equal(t, "health", sector)
	_, ok = cfg.SectorForTicker("XOM")
	require.False(t, ok)
}

func TestLoad_sampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "strategy.json"))
	require.NoError(t, err)
	require.Equal(t, "XLF", cfg.EtfsForSector("financials").Long(domain.MarketUS))
	require.Equal(t, "ERY", cfg.EtfsForSector("energy").Inverse())
	require.Equal(t, "technology", cfg.NormalizeSector("Tech"))
	require.Equal(t, 0.7, cfg.MarketWeightsForSector("technology")[domain.MarketUS])
	require.True(t, cfg.AllowedMarkets().Allows(domain.MarketUS))
	require.False(t, cfg.AllowedMarkets().Allows(domain.MarketHK))
}
