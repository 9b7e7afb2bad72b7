package vmcontroller

import (
	"errors"
	"net"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// IsTransient reports whether err is worth retrying with backoff rather
// than surfacing immediately. Conflicts and server-side throttling clear up
// on their own; a NotFound or Invalid will not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsConflict(err) || apierrors.IsServerTimeout(err) ||
		apierrors.IsTooManyRequests(err) || apierrors.IsTimeout(err) ||
		apierrors.IsServiceUnavailable(err) || apierrors.IsInternalError(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
