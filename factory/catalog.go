/*
Package factory provides JSON to Go conversion of the presence catalog.

PURPOSE:
  Converts a JSON catalog into flexitime.PresenceType and
  flexitime.LeaveType records. HR can add a presence type (say
  "training") or switch a leave type to zero allocation without a code
  change; the server installs the catalog at startup.

JSON SCHEMA:
  {
    "leave_types": [
      {"name": "Vacation"},
      {"name": "Military Service", "allow_zero_allocation": true}
    ],
    "presence_types": [
      {"name": "office", "label": "Office", "icon": "🏢", "category": "working"},
      {"name": "vacation", "label": "Vacation", "category": "leave",
       "requires_leave_application": true, "leave_type": "Vacation"},
      {"name": "holiday", "label": "Holiday", "category": "scheduled",
       "is_system": true, "system_role": "holiday"}
    ]
  }

KEY FEATURES:
  - Validates every presence type (flexitime.PresenceType.Validate)
  - Leave presence types must reference a leave type of the catalog
  - At most one presence type per system role
  - Category defaults to "working"

USAGE:
  factory := NewCatalogFactory()
  catalog, err := factory.ParseCatalog(DefaultCatalogJSON)
  if err != nil {
      return err
  }
  err = catalog.Install(ctx, store)

SEE ALSO:
  - flexitime/presence.go: PresenceType, system roles
  - flexitime/leave.go: LeaveType, zero-allocation policy
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a catalog.
type CatalogJSON struct {
	LeaveTypes    []LeaveTypeJSON    `json:"leave_types"`
	PresenceTypes []PresenceTypeJSON `json:"presence_types"`
}

type LeaveTypeJSON struct {
	Name                string `json:"name"`
	AllowZeroAllocation bool   `json:"allow_zero_allocation,omitempty"`
}

type PresenceTypeJSON struct {
	Name                     string `json:"name"`
	Label                    string `json:"label,omitempty"`
	Icon                     string `json:"icon,omitempty"`
	Category                 string `json:"category,omitempty"` // working, leave, scheduled
	IsSystem                 bool   `json:"is_system,omitempty"`
	SystemRole               string `json:"system_role,omitempty"` // holiday, day_off, weekend
	RequiresLeaveApplication bool   `json:"requires_leave_application,omitempty"`
	LeaveType                string `json:"leave_type,omitempty"`
	DeductsFromBalance       bool   `json:"deducts_from_balance,omitempty"`
}

// Catalog is the parsed form.
type Catalog struct {
	LeaveTypes    []flexitime.LeaveType
	PresenceTypes []flexitime.PresenceType
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts JSON catalogs to Go structs.
type CatalogFactory struct{}

func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// ParseCatalog parses a JSON string into a Catalog.
func (f *CatalogFactory) ParseCatalog(jsonStr string) (*Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts and validates a CatalogJSON.
func (f *CatalogFactory) FromJSON(cj CatalogJSON) (*Catalog, error) {
	catalog := &Catalog{}
	leaveTypes := map[string]bool{}
	for _, lj := range cj.LeaveTypes {
		if lj.Name == "" {
			return nil, generic.NewValidationError("leave_types", "required", "leave type name is required")
		}
		if leaveTypes[lj.Name] {
			return nil, generic.NewValidationError("leave_types", "duplicate", "leave type %s defined twice", lj.Name)
		}
		leaveTypes[lj.Name] = true
		catalog.LeaveTypes = append(catalog.LeaveTypes, flexitime.LeaveType{
			Name:                lj.Name,
			AllowZeroAllocation: lj.AllowZeroAllocation,
		})
	}

	names := map[string]bool{}
	roles := map[string]string{}
	var errs generic.ValidationErrors
	for _, pj := range cj.PresenceTypes {
		pt := flexitime.PresenceType{
			Name:                     pj.Name,
			Label:                    pj.Label,
			Icon:                     pj.Icon,
			Category:                 parseCategory(pj.Category),
			IsSystem:                 pj.IsSystem,
			SystemRole:               pj.SystemRole,
			RequiresLeaveApplication: pj.RequiresLeaveApplication,
			LeaveType:                pj.LeaveType,
			DeductsFromBalance:       pj.DeductsFromBalance,
		}
		if err := pt.Validate(); err != nil {
			return nil, fmt.Errorf("presence type %q: %w", pj.Name, err)
		}
		if names[pt.Name] {
			errs = append(errs, generic.NewValidationError("presence_types", "duplicate",
				"presence type %s defined twice", pt.Name))
		}
		names[pt.Name] = true
		if pt.LeaveType != "" && !leaveTypes[pt.LeaveType] {
			errs = append(errs, generic.NewValidationError("leave_type", "unknown",
				"presence type %s references unknown leave type %s", pt.Name, pt.LeaveType))
		}
		if pt.SystemRole != "" {
			if other, ok := roles[pt.SystemRole]; ok {
				errs = append(errs, generic.NewValidationError("system_role", "duplicate",
					"system role %s used by %s and %s", pt.SystemRole, other, pt.Name))
			}
			roles[pt.SystemRole] = pt.Name
		}
		catalog.PresenceTypes = append(catalog.PresenceTypes, pt)
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// ToJSON converts a Catalog back to its JSON form.
func (f *CatalogFactory) ToJSON(c *Catalog) CatalogJSON {
	cj := CatalogJSON{}
	for _, lt := range c.LeaveTypes {
		cj.LeaveTypes = append(cj.LeaveTypes, LeaveTypeJSON{Name: lt.Name, AllowZeroAllocation: lt.AllowZeroAllocation})
	}
	for _, pt := range c.PresenceTypes {
		cj.PresenceTypes = append(cj.PresenceTypes, PresenceTypeJSON{
			Name:                     pt.Name,
			Label:                    pt.Label,
			Icon:                     pt.Icon,
			Category:                 string(pt.Category),
			IsSystem:                 pt.IsSystem,
			SystemRole:               pt.SystemRole,
			RequiresLeaveApplication: pt.RequiresLeaveApplication,
			LeaveType:                pt.LeaveType,
			DeductsFromBalance:       pt.DeductsFromBalance,
		})
	}
	return cj
}

// Install upserts every leave type, then every presence type.
func (c *Catalog) Install(ctx context.Context, store flexitime.Store) error {
	for _, lt := range c.LeaveTypes {
		if err := store.SaveLeaveType(ctx, lt); err != nil {
			return fmt.Errorf("failed to install leave type %s: %w", lt.Name, err)
		}
	}
	for _, pt := range c.PresenceTypes {
		if err := store.SavePresenceType(ctx, pt); err != nil {
			return fmt.Errorf("failed to install presence type %s: %w", pt.Name, err)
		}
	}
	return nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseCategory(s string) flexitime.PresenceCategory {
	switch s {
	case "leave":
		return flexitime.CategoryLeave
	case "scheduled":
		return flexitime.CategoryScheduled
	default:
		return flexitime.CategoryWorking
	}
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultCatalogJSON is the Swiss default catalog.
const DefaultCatalogJSON = `{
  "leave_types": [
    {"name": "Vacation"},
    {"name": "Sick Leave", "allow_zero_allocation": true},
    {"name": "Military Service", "allow_zero_allocation": true},
    {"name": "Flex Off", "allow_zero_allocation": true}
  ],
  "presence_types": [
    {"name": "office", "label": "Office", "icon": "🏢", "category": "working"},
    {"name": "home", "label": "Home office", "icon": "🏠", "category": "working"},
    {"name": "offsite", "label": "Off-site", "icon": "🚆", "category": "working"},
    {"name": "vacation", "label": "Vacation", "icon": "🌴", "category": "leave",
     "requires_leave_application": true, "leave_type": "Vacation"},
    {"name": "sick", "label": "Sick", "icon": "🤒", "category": "leave",
     "requires_leave_application": true, "leave_type": "Sick Leave"},
    {"name": "military", "label": "Military service", "icon": "🎖", "category": "leave",
     "requires_leave_application": true, "leave_type": "Military Service"},
    {"name": "flex_off", "label": "Flex off", "icon": "⏳", "category": "leave",
     "requires_leave_application": true, "leave_type": "Flex Off", "deducts_from_balance": true},
    {"name": "holiday", "label": "Holiday", "icon": "🎉", "category": "scheduled",
     "is_system": true, "system_role": "holiday"},
    {"name": "day_off", "label": "Day off", "icon": "📅", "category": "scheduled",
     "is_system": true, "system_role": "day_off"},
    {"name": "weekend", "label": "Weekend", "category": "scheduled",
     "is_system": true, "system_role": "weekend"}
  ]
}`

// DefaultCatalog parses DefaultCatalogJSON.
func DefaultCatalog() *Catalog {
	c, err := NewCatalogFactory().ParseCatalog(DefaultCatalogJSON)
	if err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	return c
}
