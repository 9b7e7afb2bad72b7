package vmcontroller

const (
	labelApp = "vmoperator.jdrupes.org/app"
	labelVM  = "vmoperator.jdrupes.org/vm"

	// AnnotationConfigResourceVersion records, on the Pod, the ConfigMap
	// resourceVersion it was created against (spec.md §3 invariant 4).
	AnnotationConfigResourceVersion = "vmoperator.jdrupes.org/config-resource-version"
)

func labelsFor(vmName string) map[string]string {
	return map[string]string{
		labelApp: "vm",
		labelVM:  vmName,
	}
}
