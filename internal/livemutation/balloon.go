package livemutation

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"vmoperator.jdrupes.org/vm-operator/internal/qmp"
)

// BalloonController translates spec.vm.currentRam into a virtio-balloon
// target and retries once on transient failure (spec.md §4.7 "RAM resize
// via virtio-balloon").
type BalloonController struct{}

func (b *BalloonController) Apply(ctx context.Context, mon *qmp.Monitor, value string) error {
	qty, err := resource.ParseQuantity(value)
	if err != nil {
		return fmt.Errorf("invalid currentRam value %q: %w", value, err)
	}
	bytes := qty.Value()

	_, err = mon.Execute(ctx, "balloon", map[string]any{"value": bytes})
	if err == nil {
		return nil
	}

	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err = mon.Execute(ctx, "balloon", map[string]any{"value": bytes})
	if err != nil {
		return fmt.Errorf("balloon to %d bytes (after retry): %w", bytes, err)
	}
	return nil
}
