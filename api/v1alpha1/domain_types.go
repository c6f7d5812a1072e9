package v1alpha1

// Domain is a virtual machine as seen through the vmux facade.
//
// Spec carries the configured resources, Status what the facade observed
// when the resource was built.
//
// +kubebuilder:resource:shortName=dom
// +kubebuilder:printcolumn:name="State",type=string,JSONPath=`.status.state`
type Domain struct {
	TypeMeta `json:",inline" yaml:",inline"`

	// +optional
	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Spec DomainSpec `json:"spec" yaml:"spec"`

	// +optional
	Status DomainStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// DomainSpec holds the configured resources of a domain.
type DomainSpec struct {
	// VCPUs is the current vcpu count.
	VCPUs int `json:"vcpus" yaml:"vcpus"`

	// MaxVCPUs is the configured maximum, when known.
	// +optional
	MaxVCPUs int `json:"maxVCPUs,omitempty" yaml:"maxVCPUs,omitempty"`

	// MemoryKiB is the current memory size.
	MemoryKiB uint64 `json:"memoryKiB" yaml:"memoryKiB"`

	// MaxMemoryKiB is the memory ceiling.
	// +optional
	MaxMemoryKiB uint64 `json:"maxMemoryKiB,omitempty" yaml:"maxMemoryKiB,omitempty"`

	// OSType is the guest OS type, e.g. hvm.
	// +optional
	OSType string `json:"osType,omitempty" yaml:"osType,omitempty"`

	// Autostart reports whether the domain starts with the host. Nil means
	// unknown.
	// +optional
	Autostart *bool `json:"autostart,omitempty" yaml:"autostart,omitempty"`
}

// DomainStatus holds observed state.
type DomainStatus struct {
	// ID is the live numeric id, or -1 when the domain is not running.
	ID int `json:"id" yaml:"id"`

	// State is the run state.
	// +kubebuilder:validation:Enum=NoState;Running;Blocked;Paused;Shutdown;Shutoff;Crashed;PMSuspended
	State DomainState `json:"state,omitempty" yaml:"state,omitempty"`

	// CPUTimeNs is the accumulated CPU time.
	// +optional
	CPUTimeNs uint64 `json:"cpuTimeNs,omitempty" yaml:"cpuTimeNs,omitempty"`

	// UsedCPUs is the range-formatted set of host CPUs the vcpus may run
	// on, empty when unrestricted or unknown.
	// +optional
	UsedCPUs string `json:"usedCPUs,omitempty" yaml:"usedCPUs,omitempty"`

	// ObservedAt is when the status was collected.
	// +optional
	ObservedAt Time `json:"observedAt,omitempty" yaml:"observedAt,omitempty"`

	// Conditions are the Persistent and ManagedSave observations.
	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// DomainState is the run state of a Domain.
type DomainState string

const (
	DomainStateNoState     DomainState = "NoState"
	DomainStateRunning     DomainState = "Running"
	DomainStateBlocked     DomainState = "Blocked"
	DomainStatePaused      DomainState = "Paused"
	DomainStateShutdown    DomainState = "Shutdown"
	DomainStateShutoff     DomainState = "Shutoff"
	DomainStateCrashed     DomainState = "Crashed"
	DomainStatePMSuspended DomainState = "PMSuspended"
)

// Condition types set on DomainStatus.
const (
	// ConditionPersistent is True when the domain survives being stopped.
	ConditionPersistent = "Persistent"
	// ConditionManagedSave is True when a managed-save image exists.
	ConditionManagedSave = "ManagedSave"
)

// DeepCopy creates a deep copy of Domain.
func (in *Domain) DeepCopy() *Domain {
	if in == nil {
		return nil
	}
	out := new(Domain)
	out.TypeMeta = in.TypeMeta
	out.ObjectMeta = *in.ObjectMeta.DeepCopy()
	out.Spec = *in.Spec.DeepCopy()
	out.Status = *in.Status.DeepCopy()
	return out
}

// DeepCopy creates a deep copy of DomainSpec.
func (in *DomainSpec) DeepCopy() *DomainSpec {
	if in == nil {
		return nil
	}
	out := new(DomainSpec)
	*out = *in
	if in.Autostart != nil {
		v := *in.Autostart
		out.Autostart = &v
	}
	return out
}

// DeepCopy creates a deep copy of DomainStatus.
func (in *DomainStatus) DeepCopy() *DomainStatus {
	if in == nil {
		return nil
	}
	out := new(DomainStatus)
	*out = *in
	if in.Conditions != nil {
		out.Conditions = make([]Condition, len(in.Conditions))
		copy(out.Conditions, in.Conditions)
	}
	return out
}
