// ABOUTME: Utility tools: current time and placeholder weather
// ABOUTME: Weather is canned data until a real provider is integrated

package tools

import (
	"context"
	"encoding/json"
	"time"
)

const weatherPlaceholder = "Sunny and 72 degrees. This is just example weather data by the way. Actual weather API integration will come in the future."

// UtilitiesPack returns general utility tools.
func UtilitiesPack() []*Tool {
	return []*Tool{
		{
			Definition: Definition{
				Name:            "get_current_time",
				Description:     "Get the current time",
				InputSchemaJSON: `{"type":"object","properties":{}}`,
			},
			Handler: getCurrentTime,
		},
		{
			Definition: Definition{
				Name:            "get_hourly_weather",
				Description:     "Get weather information",
				InputSchemaJSON: `{"type":"object","properties":{}}`,
			},
			Handler: getHourlyWeather,
		},
	}
}

func getCurrentTime(_ context.Context, tc *Context, _ json.RawMessage) (string, error) {
	return tc.now().Format(time.RFC3339), nil
}

func getHourlyWeather(_ context.Context, _ *Context, _ json.RawMessage) (string, error) {
	return weatherPlaceholder, nil
}
