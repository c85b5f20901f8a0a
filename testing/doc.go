// Package testing provides test utilities for the handover library.
//
// It follows Go's convention of providing testing helpers in a dedicated
// package (similar to net/http/httptest). Nothing here is meant for
// production use.
//
// Key utilities:
//   - StartEmbeddedNATS: In-process NATS server with JetStream
//   - CreateJetStreamKV / CreateObjectStore: Bucket helpers
//   - AssetServer: httptest server hosting a fake full variant build
//   - Bootstrapper / Presenter / Environment: Recording collaborator fakes
//   - NewTestLogger: types.Logger writing through t.Logf
//
// Example usage:
//
//	import (
//	    "testing"
//	    handovertest "github.com/arloliu/handover/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    srv := handovertest.NewAssetServer(t, handovertest.DefaultBuild())
//	    // point a Variant at srv.URL()
//	}
package testing
