// Package callrelay relays call-completed events from a telephony platform
// to the workflow trigger subscriptions registered for each tenant.
//
// Two webhooks drive it. Subscription lifecycle events (CREATED, UPDATED,
// DELETED) maintain a per-tenant registry of trigger subscriptions. Call
// events are authenticated with the platform's RSA signature, normalized
// into an event.CallEvent, and POSTed concurrently to every subscription of
// the call's tenant. A failed delivery never affects its siblings; there
// are no retries.
//
// Quick start:
//
//	r, err := callrelay.New(
//	    callrelay.WithStore(memory.New()),
//	    callrelay.WithRequestTimeout(5*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.ListenAndServe(":3000", api.NewHandler(r, nil))
//
// Persistence is pluggable through store.Store; backends live under
// store/ (memory, file, redis, sqlite, postgres, mongo). The callrelayd
// command runs the relay as a standalone server configured from YAML and
// the environment; see package server.
package callrelay
