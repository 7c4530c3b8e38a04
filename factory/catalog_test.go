package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
	"github.com/warp/flexitime-engine/store/memory"
)

func TestParseCatalog_Defaults(t *testing.T) {
	c := DefaultCatalog()

	assert.Len(t, c.LeaveTypes, 4)
	assert.Len(t, c.PresenceTypes, 10)

	holiday := flexitime.SystemPresenceType(c.PresenceTypes, flexitime.RoleHoliday)
	require.NotNil(t, holiday)
	assert.Equal(t, "holiday", holiday.Name)
	assert.Equal(t, flexitime.CategoryScheduled, holiday.Category)

	flexOff := flexitime.PresenceTypeForLeave(c.PresenceTypes, "Flex Off")
	require.NotNil(t, flexOff)
	assert.True(t, flexOff.DeductsFromBalance)

	for _, lt := range c.LeaveTypes {
		if lt.Name == "Military Service" {
			assert.True(t, lt.AllowZeroAllocation)
		}
	}
}

func TestParseCatalog_CategoryDefaultsToWorking(t *testing.T) {
	c, err := NewCatalogFactory().ParseCatalog(`{"presence_types": [{"name": "training"}]}`)
	require.NoError(t, err)
	require.Len(t, c.PresenceTypes, 1)
	assert.Equal(t, flexitime.CategoryWorking, c.PresenceTypes[0].Category)
}

func TestParseCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"presence_types": [`},
		{"unknown leave type", `{"presence_types": [{"name": "x", "requires_leave_application": true, "leave_type": "Nope"}]}`},
		{"leave without type", `{"presence_types": [{"name": "x", "requires_leave_application": true}]}`},
		{"duplicate role", `{"presence_types": [
			{"name": "a", "is_system": true, "system_role": "holiday"},
			{"name": "b", "is_system": true, "system_role": "holiday"}]}`},
		{"duplicate name", `{"presence_types": [{"name": "a"}, {"name": "a"}]}`},
		{"duplicate leave type", `{"leave_types": [{"name": "Vacation"}, {"name": "Vacation"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalogFactory().ParseCatalog(tt.json)
			assert.Error(t, err)
		})
	}
}

func TestCatalog_ToJSONRoundTrip(t *testing.T) {
	f := NewCatalogFactory()
	c := DefaultCatalog()

	again, err := f.FromJSON(f.ToJSON(c))
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestCatalog_Install(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Installing the default catalog
	// THEN: Leave types and presence types are available to the services

	ctx := context.Background()
	store := memory.New()
	require.NoError(t, DefaultCatalog().Install(ctx, store))

	types, err := store.ListPresenceTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 10)

	lt, err := store.GetLeaveType(ctx, "Sick Leave")
	require.NoError(t, err)
	require.NotNil(t, lt)
	assert.True(t, lt.AllowZeroAllocation)

	_, err = flexitime.ValidateAllocation(*lt, flexitime.LeaveAllocation{
		EntityID: "emp-1", LeaveType: lt.Name, NewLeaves: generic.NewAmount(0, generic.UnitDays),
	})
	assert.NoError(t, err)
}
