package simulation

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gridd.sh/internal/gerrors"
)

// ReferenceCapacityGW is the fixed grid capacity that demand is measured
// against when computing stress percentages.
const ReferenceCapacityGW = 250.0

// DefaultHorizon is the number of hourly points produced when the caller
// does not ask for a specific horizon.
const DefaultHorizon = 24

// Config describes one scenario run. Immutable once handed to the engine.
type Config struct {
	DemandMultiplier   float64 `json:"demandMultiplier"`
	RenewablePercent   float64 `json:"renewablePercent"`
	StorageCapacityGW  float64 `json:"storageCapacityGW"`
	TemperatureOffsetC float64 `json:"temperatureOffsetC"`
	Preset             Preset  `json:"preset"`
}

// HourlyPoint is one hour of simulated grid state. Values are kept at
// full precision; use Rounded at the presentation boundary.
type HourlyPoint struct {
	Hour              int     `json:"hour"`
	Label             string  `json:"label"`
	DemandGW          float64 `json:"demandGW"`
	RenewableGW       float64 `json:"renewableGW"`
	ConventionalGW    float64 `json:"conventionalGW"`
	GridStressPercent float64 `json:"gridStressPercent"`
	PriceUSDPerMWh    float64 `json:"priceUSDPerMWh"`
	CarbonIntensity   float64 `json:"carbonIntensity"`
}

// Rounded returns a copy rounded to display precision: one decimal for
// GW and price, whole numbers for stress and carbon intensity.
func (p HourlyPoint) Rounded() HourlyPoint {
	p.DemandGW = round1(p.DemandGW)
	p.RenewableGW = round1(p.RenewableGW)
	p.ConventionalGW = round1(p.ConventionalGW)
	p.PriceUSDPerMWh = round1(p.PriceUSDPerMWh)
	p.GridStressPercent = math.Round(p.GridStressPercent)
	p.CarbonIntensity = math.Round(p.CarbonIntensity)
	return p
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Engine computes hourly scenario time series. Deterministic for a
// seeded RNG; the RNG only feeds the small price noise term.
type Engine struct {
	rng *rand.Rand
}

// NewEngine creates an Engine. A nil rng falls back to a time-seeded source.
func NewEngine(rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{rng: rng}
}

// Run produces an ordered hourly time series for the scenario. A zero
// horizon means DefaultHorizon; a negative horizon is rejected.
func (e *Engine) Run(cfg Config, horizon int) ([]HourlyPoint, error) {
	if horizon < 0 {
		return nil, gerrors.Newf(gerrors.ErrCodeInvalidHorizon, "horizon must be >= 0, got %d", horizon)
	}
	if horizon == 0 {
		horizon = DefaultHorizon
	}

	preset := cfg.Preset
	if preset.DemandModifier == 0 && preset.RenewableModifier == 0 {
		preset = PresetByName("baseline")
	}

	points := make([]HourlyPoint, 0, horizon)
	for h := 0; h < horizon; h++ {
		// Diurnal demand curve peaking mid-afternoon.
		timeOfDay := math.Sin((float64(h) - 6) * math.Pi / 12)

		baseDemand := 180 + timeOfDay*60 + cfg.TemperatureOffsetC*2
		demand := baseDemand * cfg.DemandMultiplier * preset.DemandModifier

		solar := math.Max(0, timeOfDay*50) * (cfg.RenewablePercent / 40) * preset.RenewableModifier
		wind := (25 + math.Sin(float64(h)/4)*15) * (cfg.RenewablePercent / 40) * preset.RenewableModifier
		renewable := solar + wind

		conventional := math.Max(0, demand-renewable-cfg.StorageCapacityGW)
		stress := math.Min(100, demand/ReferenceCapacityGW*100)

		noise := (e.rng.Float64() - 0.5) * 4
		price := 30 + stress*0.5 + noise

		carbon := 400 - cfg.RenewablePercent*3
		if demand > 0 {
			carbon += (conventional / demand) * 100
		}

		points = append(points, HourlyPoint{
			Hour:              h,
			Label:             fmt.Sprintf("%02d:00", h%24),
			DemandGW:          demand,
			RenewableGW:       renewable,
			ConventionalGW:    conventional,
			GridStressPercent: stress,
			PriceUSDPerMWh:    price,
			CarbonIntensity:   carbon,
		})
	}

	return points, nil
}
