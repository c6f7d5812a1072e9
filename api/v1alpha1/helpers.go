package v1alpha1

import (
	"time"
)

const (
	// GroupName is the API group for vmux resources.
	GroupName = "vmux.cofront.xyz"

	// Version is the API version.
	Version = "v1alpha1"

	// DomainKind is the kind string for Domain resources.
	DomainKind = "Domain"

	// DomainListKind is the kind string for a list of Domains.
	DomainListKind = "DomainList"
)

// NewDomain creates a Domain with TypeMeta filled in and an inactive
// status.
func NewDomain(name, uid string) *Domain {
	return &Domain{
		TypeMeta: TypeMeta{
			APIVersion: GroupName + "/" + Version,
			Kind:       DomainKind,
		},
		ObjectMeta: ObjectMeta{
			Name: name,
			UID:  uid,
		},
		Status: DomainStatus{
			ID:    -1,
			State: DomainStateNoState,
		},
	}
}

// SetDefaultAPIVersion ensures the domain has the correct apiVersion and
// kind.
func SetDefaultAPIVersion(d *Domain) {
	if d.APIVersion == "" {
		d.APIVersion = GroupName + "/" + Version
	}
	if d.Kind == "" {
		d.Kind = DomainKind
	}
}

// IsActive reports whether the domain was running when observed.
func (d *Domain) IsActive() bool {
	return d.Status.ID >= 0
}

// IsAutostart returns the autostart flag, false when unknown.
func (d *Domain) IsAutostart() bool {
	return d.Spec.Autostart != nil && *d.Spec.Autostart
}

// SetAutostart records the autostart flag.
func (d *Domain) SetAutostart(on bool) {
	d.Spec.Autostart = &on
}

// SetLabel sets one metadata label.
func (d *Domain) SetLabel(key, value string) {
	if d.Labels == nil {
		d.Labels = make(map[string]string)
	}
	d.Labels[key] = value
}

// GetCondition returns the condition of the given type, or nil.
func (d *Domain) GetCondition(condType string) *Condition {
	for i := range d.Status.Conditions {
		if d.Status.Conditions[i].Type == condType {
			return &d.Status.Conditions[i]
		}
	}
	return nil
}

// SetCondition adds or updates a condition. LastTransitionTime only moves
// when the status changes.
func (d *Domain) SetCondition(condType string, status ConditionStatus, reason, message string) {
	now := Time{Time: time.Now().UTC().Truncate(time.Second)}

	if c := d.GetCondition(condType); c != nil {
		if c.Status != status {
			c.LastTransitionTime = now
		}
		c.Status = status
		c.Reason = reason
		c.Message = message
		return
	}

	d.Status.Conditions = append(d.Status.Conditions, Condition{
		Type:               condType,
		Status:             status,
		LastTransitionTime: now,
		Reason:             reason,
		Message:            message,
	})
}

// IsConditionTrue reports whether the condition exists with status True.
func (d *Domain) IsConditionTrue(condType string) bool {
	c := d.GetCondition(condType)
	return c != nil && c.Status == ConditionTrue
}

// BoolCondition converts a boolean observation into a ConditionStatus.
func BoolCondition(v bool) ConditionStatus {
	if v {
		return ConditionTrue
	}
	return ConditionFalse
}
