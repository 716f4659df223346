package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	// Embedded zone database for hosts without /usr/share/zoneinfo.
	_ "time/tzdata"
)

const timeLayout = "Monday, January 2, 2006, 03:04:05 PM MST"

// RegisterSystemTools registers get_current_time. now defaults to time.Now.
func (r *Registry) RegisterSystemTools(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.logger.Info().Msg("Registering system tools in registry")

	r.Register("get_current_time", func(ctx context.Context, args map[string]any) (string, error) {
		tz := strings.TrimSpace(stringArg(args, "timezone"))
		loc := time.Local
		if tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				return "", fmt.Errorf("invalid timezone %q: %w", tz, err)
			}
			loc = l
		} else {
			tz = localZoneName()
		}
		return fmt.Sprintf("Current time in %s: %s", tz, now().In(loc).Format(timeLayout)), nil
	})
}

func localZoneName() string {
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	name, _ := time.Now().Zone()
	return name
}

// stringArg returns args[key] when it is a string.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg returns args[key] as an int. JSON numbers arrive as float64.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}
