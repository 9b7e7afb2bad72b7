package vmcontroller

import "vmoperator.jdrupes.org/vm-operator/internal/render"

// Definition is the reconciler's projection of a VirtualMachine CR (the
// spec's "VmDefinition"). Its fields and helpers live in internal/render so
// the ConfigMap/cidata renderers can stay pure functions with no dependency
// back on this package.
type Definition = render.Definition

// NewDefinition projects a VirtualMachine CR into a Definition.
var NewDefinition = render.NewDefinition
