// Package mocks provides test doubles for the lookup interfaces.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	"github.com/sells-group/prospect-cli/internal/lookup"
	"github.com/sells-group/prospect-cli/internal/model"
)

// MockLookup is a mock type for the Lookup interface.
type MockLookup struct {
	mock.Mock
}

// VerifyAddress provides a mock function with given fields: ctx, address
func (_m *MockLookup) VerifyAddress(ctx context.Context, address string) (*lookup.AddressVerification, error) {
	ret := _m.Called(ctx, address)

	if len(ret) == 0 {
		panic("no return value specified for VerifyAddress")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string) (*lookup.AddressVerification, error)); ok {
		return rf(ctx, address)
	}

	var r0 *lookup.AddressVerification
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*lookup.AddressVerification)
	}
	return r0, ret.Error(1)
}

// Geocode provides a mock function with given fields: ctx, address
func (_m *MockLookup) Geocode(ctx context.Context, address string) (*model.Coordinates, error) {
	ret := _m.Called(ctx, address)

	if len(ret) == 0 {
		panic("no return value specified for Geocode")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string) (*model.Coordinates, error)); ok {
		return rf(ctx, address)
	}

	var r0 *model.Coordinates
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Coordinates)
	}
	return r0, ret.Error(1)
}

// SearchNearby provides a mock function with given fields: ctx, q
func (_m *MockLookup) SearchNearby(ctx context.Context, q lookup.NearbyQuery) ([]lookup.Business, error) {
	ret := _m.Called(ctx, q)

	if len(ret) == 0 {
		panic("no return value specified for SearchNearby")
	}

	if rf, ok := ret.Get(0).(func(context.Context, lookup.NearbyQuery) ([]lookup.Business, error)); ok {
		return rf(ctx, q)
	}

	var r0 []lookup.Business
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]lookup.Business)
	}
	return r0, ret.Error(1)
}

// SearchByType provides a mock function with given fields: ctx, businessType, location, maxResults
func (_m *MockLookup) SearchByType(ctx context.Context, businessType string, location string, maxResults int) ([]lookup.Business, error) {
	ret := _m.Called(ctx, businessType, location, maxResults)

	if len(ret) == 0 {
		panic("no return value specified for SearchByType")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string, int) ([]lookup.Business, error)); ok {
		return rf(ctx, businessType, location, maxResults)
	}

	var r0 []lookup.Business
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]lookup.Business)
	}
	return r0, ret.Error(1)
}

// NewMockLookup creates a new instance of MockLookup. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockLookup(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockLookup {
	mock := &MockLookup{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}

// MockLocationAnalyzer is a mock type for the LocationAnalyzer interface.
type MockLocationAnalyzer struct {
	mock.Mock
}

// Available provides a mock function with no fields
func (_m *MockLocationAnalyzer) Available() bool {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Available")
	}
	return ret.Bool(0)
}

// AnalyzeForLocations provides a mock function with given fields: ctx, rows
func (_m *MockLocationAnalyzer) AnalyzeForLocations(ctx context.Context, rows []model.SourceRow) (*model.LocationAnalysis, error) {
	ret := _m.Called(ctx, rows)

	if len(ret) == 0 {
		panic("no return value specified for AnalyzeForLocations")
	}

	if rf, ok := ret.Get(0).(func(context.Context, []model.SourceRow) (*model.LocationAnalysis, error)); ok {
		return rf(ctx, rows)
	}

	var r0 *model.LocationAnalysis
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.LocationAnalysis)
	}
	return r0, ret.Error(1)
}

// NewMockLocationAnalyzer creates a new instance of MockLocationAnalyzer.
func NewMockLocationAnalyzer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockLocationAnalyzer {
	mock := &MockLocationAnalyzer{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
