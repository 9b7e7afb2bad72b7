package livemutation

import (
	"context"
	"fmt"

	"vmoperator.jdrupes.org/vm-operator/internal/qmp"
)

// DisplayController refreshes the SPICE password when the reconciler
// rotates the display Secret (spec.md §4.7 "Display password refresh").
// value is "<password>" or "<password>|<rfc3339-expiry>".
type DisplayController struct{}

func (d *DisplayController) Apply(ctx context.Context, mon *qmp.Monitor, value string) error {
	password, expiry := splitPasswordExpiry(value)

	if _, err := mon.Execute(ctx, "set_password", map[string]any{
		"protocol":  "spice",
		"password":  password,
		"connected": "keep",
	}); err != nil {
		return fmt.Errorf("set_password: %w", err)
	}

	if expiry == "" {
		return nil
	}
	if _, err := mon.Execute(ctx, "expire_password", map[string]any{
		"protocol": "spice",
		"time":     expiry,
	}); err != nil {
		return fmt.Errorf("expire_password: %w", err)
	}
	return nil
}

func splitPasswordExpiry(value string) (password, expiry string) {
	for i := 0; i < len(value); i++ {
		if value[i] == '|' {
			return value[:i], value[i+1:]
		}
	}
	return value, ""
}
