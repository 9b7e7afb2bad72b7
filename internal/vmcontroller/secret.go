package vmcontroller

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
	"vmoperator.jdrupes.org/vm-operator/internal/render"
)

const displaySecretPasswordKey = "password"

// reconcileDisplaySecret creates the SPICE display-password Secret the
// first time SPICE is enabled and no secret exists, unless the VM opted out
// via generateSecret=false (spec.md §4.3). It never overwrites an existing
// secret — rotation is a user/operator action performed directly on the
// Secret. It returns the password currently held by the Secret (new or
// existing) so the reconciler can detect a rotation and forward it to the
// runner's DisplayController over the VM channel; "" means display is
// disabled for this VM.
func (r *VirtualMachineReconciler) reconcileDisplaySecret(ctx context.Context, vm *vmoperatorv1.VirtualMachine, def render.Definition) (string, error) {
	spice := vm.Spec.Vm.Display.Spice
	if spice.Port == 0 {
		return "", nil
	}
	if spice.GenerateSecret != nil && !*spice.GenerateSecret {
		return "", nil
	}

	name := def.DisplaySecretName()
	existing := &corev1.Secret{}
	err := r.Get(ctx, types.NamespacedName{Name: name, Namespace: vm.Namespace}, existing)
	if err == nil {
		return string(existing.Data[displaySecretPasswordKey]), nil
	}
	if !apierrors.IsNotFound(err) {
		return "", fmt.Errorf("get display secret %s: %w", name, err)
	}

	password, err := randomPassword(16)
	if err != nil {
		return "", fmt.Errorf("generate display password: %w", err)
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:            name,
			Namespace:       vm.Namespace,
			Labels:          labelsFor(vm.Name),
			OwnerReferences: []metav1.OwnerReference{*nonControllingOwnerRef(vm)},
		},
		StringData: map[string]string{
			displaySecretPasswordKey: password,
		},
		Type: corev1.SecretTypeOpaque,
	}
	if err := retryAPI(ctx, func() error { return r.Create(ctx, secret) }); err != nil && !apierrors.IsAlreadyExists(err) {
		return "", fmt.Errorf("create display secret %s: %w", name, err)
	}
	return password, nil
}

func randomPassword(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
