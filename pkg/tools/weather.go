package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// WeatherToolName is the name of the built-in weather stub.
const WeatherToolName = "get_current_weather"

// WeatherReport is the stub's result.
type WeatherReport struct {
	Location    string   `json:"location"`
	Temperature string   `json:"temperature"`
	Unit        string   `json:"unit"`
	Forecast    []string `json:"forecast"`
}

type weatherArgs struct {
	Location string `mapstructure:"location"`
	Unit     string `mapstructure:"unit"`
}

// WeatherDeclaration declares get_current_weather(location, unit).
func WeatherDeclaration() Declaration {
	return Declaration{
		Name:        WeatherToolName,
		Description: "Get the current weather in a given location",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"location": {
					Type:        "string",
					Description: "The city and state, e.g. San Francisco, CA",
				},
				"unit": {
					Type: "string",
					Enum: []any{"celsius", "fahrenheit"},
				},
			},
			Required: []string{"location"},
		},
	}
}

// Weather always reports 72 degrees, sunny and windy.
func Weather(_ context.Context, args map[string]any) (any, error) {
	var in weatherArgs
	if err := mapstructure.Decode(args, &in); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if in.Location == "" {
		return nil, errors.New("location is required")
	}
	if in.Unit == "" {
		in.Unit = "fahrenheit"
	}
	return WeatherReport{
		Location:    in.Location,
		Temperature: "72",
		Unit:        in.Unit,
		Forecast:    []string{"sunny", "windy"},
	}, nil
}

// RegisterBuiltins registers the tools shipped with this module.
func RegisterBuiltins(r *Registry) error {
	return r.Register(WeatherDeclaration(), Weather)
}
