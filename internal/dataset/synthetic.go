package dataset

import (
	"context"
	"math"
	"math/rand"
	"time"

	"annadata/internal/frame"
)

// SyntheticStart is the first generated day.
var SyntheticStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var weatherConditions = []struct {
	main, description string
}{
	{"Clear", "clear sky"},
	{"Clouds", "scattered clouds"},
	{"Rain", "light rain"},
	{"Thunderstorm", "thunderstorm"},
}

// SyntheticWeather generates daily observations for each region from fixed
// distributions. The same seed always yields the same records.
type SyntheticWeather struct {
	Regions []string
	Days    int
	Start   time.Time
	Seed    int64
}

// Name identifies the source in logs and manifests.
func (s *SyntheticWeather) Name() string { return "synthetic" }

// Observations generates region-major, day-ordered records.
func (s *SyntheticWeather) Observations() []WeatherObservation {
	start := s.Start
	if start.IsZero() {
		start = SyntheticStart
	}
	rng := rand.New(rand.NewSource(s.Seed))
	obs := make([]WeatherObservation, 0, len(s.Regions)*s.Days)

	for _, region := range s.Regions {
		for d := 0; d < s.Days; d++ {
			cond := weatherConditions[rng.Intn(len(weatherConditions))]
			obs = append(obs, WeatherObservation{
				Timestamp:          start.AddDate(0, 0, d),
				RegionName:         region,
				TemperatureCurrent: normal(rng, 25, 8),
				TemperatureMin:     normal(rng, 20, 6.4),
				TemperatureMax:     normal(rng, 32, 6.4),
				GrowingDegreeDays:  math.Max(normal(rng, 25, 8)-10, 0),
				RelativeHumidity:   clip(normal(rng, 65, 15), 0, 100),
				Pressure:           normal(rng, 1013, 10),
				Rain1h:             rng.ExpFloat64() * 1.5,
				Rain3h:             rng.ExpFloat64() * 2.0,
				WindSpeed:          gamma2(rng, 2),
				WindGust:           gamma2(rng, 2.5),
				WindDegree:         rng.Float64() * 360,
				CloudCover:         clip(normal(rng, 50, 30), 0, 100),
				WeatherMain:        cond.main,
				WeatherDescription: cond.description,
				IsRainy:            rng.Float64() < 0.3,
				IsThunderstorm:     rng.Float64() < 0.1,
				IsClear:            rng.Float64() < 0.4,
				IsCloudy:           rng.Float64() < 0.5,
			})
		}
	}
	return obs
}

// Load returns the generated records as a weather frame.
func (s *SyntheticWeather) Load(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return WeatherFrame(s.Observations())
}

func normal(rng *rand.Rand, mean, std float64) float64 {
	return mean + std*rng.NormFloat64()
}

// gamma2 draws Gamma(shape 2, scale theta) as the sum of two exponentials.
func gamma2(rng *rand.Rand, theta float64) float64 {
	return theta * (rng.ExpFloat64() + rng.ExpFloat64())
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
