// Package testutil provides fixtures for tests that drive a boundary from
// the outside: a started boundary on an in-process bus with handlers for
// chosen categories, frame waiting helpers, and sample request payloads.
//
//	bus := transport.NewBus()
//	b := testutil.StartBoundary(t, bus, boundary.Config{},
//		testutil.Route{Category: "square", Handler: testutil.SquareHandler})
//
// The boundary is joined when the test ends.
package testutil
