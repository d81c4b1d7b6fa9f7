package auth

import (
	"fmt"

	"github.com/mcare/mcare/internal/platform/apperr"
)

// Capability names an action on a kind of record.
type Capability string

const (
	CapUsersCreate Capability = "users:create"

	CapClinicsRead  Capability = "clinics:read"
	CapClinicsWrite Capability = "clinics:write"

	CapMothersCreate Capability = "mothers:create"
	CapMothersRead   Capability = "mothers:read"
	CapMothersUpdate Capability = "mothers:update"
	CapMothersDelete Capability = "mothers:delete"
	CapMothersList   Capability = "mothers:list"
	CapMothersSearch Capability = "mothers:search"

	CapChildrenCreate Capability = "children:create"
	CapChildrenRead   Capability = "children:read"
	CapChildrenUpdate Capability = "children:update"
	CapChildrenDelete Capability = "children:delete"
	CapChildrenList   Capability = "children:list"

	CapMedicalRecordsRead  Capability = "medical_records:read"
	CapMedicalRecordsWrite Capability = "medical_records:write"

	CapVisitsRead   Capability = "visits:read"
	CapVisitsWrite  Capability = "visits:write"
	CapVisitsList   Capability = "visits:list"
	CapVisitsDelete Capability = "visits:delete"

	CapVaccinationsRead   Capability = "vaccinations:read"
	CapVaccinationsWrite  Capability = "vaccinations:write"
	CapVaccinationsList   Capability = "vaccinations:list"
	CapVaccinationsDelete Capability = "vaccinations:delete"
	CapVaccinationsAlerts Capability = "vaccinations:alerts"
)

type access int

const (
	adminOnly access = iota
	staffOnly
	ownerOrStaff
)

var capabilities = map[Capability]access{
	CapUsersCreate:  adminOnly,
	CapClinicsWrite: adminOnly,
	CapClinicsRead:  ownerOrStaff,

	CapMothersCreate: ownerOrStaff,
	CapMothersRead:   ownerOrStaff,
	CapMothersUpdate: ownerOrStaff,
	CapMothersDelete: staffOnly,
	CapMothersList:   staffOnly,
	CapMothersSearch: staffOnly,

	CapChildrenCreate: ownerOrStaff,
	CapChildrenRead:   ownerOrStaff,
	CapChildrenUpdate: ownerOrStaff,
	CapChildrenDelete: staffOnly,
	CapChildrenList:   staffOnly,

	CapMedicalRecordsRead:  ownerOrStaff,
	CapMedicalRecordsWrite: staffOnly,

	CapVisitsRead:   ownerOrStaff,
	CapVisitsWrite:  staffOnly,
	CapVisitsList:   staffOnly,
	CapVisitsDelete: staffOnly,

	CapVaccinationsRead:   ownerOrStaff,
	CapVaccinationsWrite:  staffOnly,
	CapVaccinationsList:   staffOnly,
	CapVaccinationsDelete: staffOnly,
	CapVaccinationsAlerts: staffOnly,
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Authorize decides whether caller may perform capability on a record owned
// by the user id in owner. A nil owner means the record has no owning
// mother, which only staff may touch.
func Authorize(caller Principal, capability Capability, owner *int64) Decision {
	acc, ok := capabilities[capability]
	if !ok {
		return deny("unknown capability %s", capability)
	}
	if caller.UserID == 0 || caller.Role == "" {
		return deny("no authenticated caller")
	}

	switch caller.Role {
	case RoleAdmin:
		return allow()
	case RoleHealthWorker:
		if acc == adminOnly {
			return deny("%s requires role admin", capability)
		}
		return allow()
	case RoleMother:
		if acc != ownerOrStaff {
			return deny("%s is not available to role mother", capability)
		}
		if owner == nil || *owner != caller.UserID {
			return deny("record belongs to another user")
		}
		return allow()
	}
	return deny("role %q is not recognised", caller.Role)
}

// Require is Authorize returning a Forbidden error on deny.
func Require(caller Principal, capability Capability, owner *int64) error {
	if d := Authorize(caller, capability, owner); !d.Allowed {
		return apperr.Forbidden(d.Reason)
	}
	return nil
}

// Owner is a helper for passing a known owning user id.
func Owner(userID int64) *int64 { return &userID }
