package rag

import "hash/fnv"

// WeatherView is the renderable weather card produced by the showWeather
// tool. Construction is pure local computation; the presentation layer owns
// actual rendering.
type WeatherView struct {
	City       string `json:"city"`
	Unit       string `json:"unit"`
	Temp       int    `json:"temp"`
	High       int    `json:"high"`
	Low        int    `json:"low"`
	Conditions string `json:"conditions"`
}

var conditionNames = []string{"Sunny", "Partly Cloudy", "Cloudy", "Light Rain", "Clear"}

// NewWeatherView builds a deterministic weather card for a city.
func NewWeatherView(city, unit string) WeatherView {
	h := fnv.New32a()
	h.Write([]byte(city))
	seed := h.Sum32()

	temp := 55 + int(seed%30)
	return WeatherView{
		City:       city,
		Unit:       unit,
		Temp:       temp,
		High:       temp + 5,
		Low:        temp - 8,
		Conditions: conditionNames[seed%uint32(len(conditionNames))],
	}
}
