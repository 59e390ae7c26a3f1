package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClippingsAI/clippings-mvp/engine/model"
)

// Each tool is declared statically: a name, a parameter struct, and a
// handler returning the tool result text plus a renderable view. The
// dispatch table is the single enumeration of tool name to effect.

const showWeatherName = "showWeather"

// WeatherParams are the arguments of the showWeather tool.
type WeatherParams struct {
	City string `json:"city"`
	Unit string `json:"unit"`
}

type toolEntry struct {
	def model.ToolDef
	run func(ctx context.Context, args json.RawMessage) (result string, view any, err error)
}

var toolTable = map[string]toolEntry{
	showWeatherName: {
		def: model.ToolDef{
			Name:        showWeatherName,
			Description: "Show the weather for a given location.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{
						"type":        "string",
						"description": "The city to show the weather for.",
					},
					"unit": map[string]any{
						"type":        "string",
						"enum":        []string{"F"},
						"description": "The unit to display the temperature in",
					},
				},
				"required": []string{"city", "unit"},
			},
		},
		run: runShowWeather,
	},
}

func toolDefs() []model.ToolDef {
	defs := make([]model.ToolDef, 0, len(toolTable))
	for _, entry := range toolTable {
		defs = append(defs, entry.def)
	}
	return defs
}

func runShowWeather(_ context.Context, args json.RawMessage) (string, any, error) {
	var params WeatherParams
	if err := json.Unmarshal(args, &params); err != nil {
		return "", nil, fmt.Errorf("decode arguments: %w", err)
	}
	if params.City == "" {
		return "", nil, fmt.Errorf("city is required")
	}
	if params.Unit == "" {
		params.Unit = "F"
	}
	view := NewWeatherView(params.City, params.Unit)
	return fmt.Sprintf("Here's the weather for %s!", params.City), view, nil
}
