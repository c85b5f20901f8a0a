// Package handover boots a lightweight "lite" variant of an application right
// away and hands the session over to the heavy "full" variant once its assets
// are cached.
//
// The controller prefetches the full variant in the background while the user
// plays the lite one, records readiness in a persistent store, and switches
// either instantly when everything is cached or behind a short mask with a
// bounded wait when it is not.
//
// # Quick Start
//
//	import "github.com/arloliu/handover"
//
//	cfg := handover.DefaultConfig()
//	cfg.Lite.BaseURL = "https://cdn.example.com/lite/"
//	cfg.Full.BaseURL = "https://cdn.example.com/full/"
//	cfg.Full.Version = "2024.06.1"
//
//	ctrl, err := handover.NewController(&cfg, bootstrapper, presenter)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := ctrl.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer ctrl.Stop(context.Background())
//
//	ctrl.LevelReached(3) // queues the prefetch
//	ctrl.Complete()      // requests the switch
//
// # Key Features
//
//   - Prefetch Triggers: time after boot, level milestones deferred to idle or hidden moments, completion
//   - Single-Flight Prefetch: overlapping triggers share one pipeline run per version
//   - Versioned Readiness: records expire and are ignored when the version changes
//   - Partitioned Cache: prefetched and runtime assets live in named, version-scoped partitions
//   - Bounded Switch: instant when ready, otherwise masked with a timeout and one grace extension
//
// # Architecture
//
// The controller progresses through a state machine:
//
//	INIT → LITE_RUNNING → FULL_PRELOADING → FULL_READY → SWITCHING → FULL_RUNNING
//
// Storage is pluggable: the readiness store runs on memory, SQLite or NATS
// JetStream KV (store package) and the asset cache on memory or a JetStream
// object store (cache package). Variants running in another process talk to
// the controller through NATS messages (SubscribeMessages, PublishMessage).
//
// # Advanced Usage
//
//	hooks := &handover.Hooks{
//	    OnSwitched: func(ctx context.Context, reason string, forced bool) error {
//	        log.Printf("switched (%s), forced=%v", reason, forced)
//	        return nil
//	    },
//	}
//
//	kv, err := store.OpenSQLite(ctx, "handover.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctrl, err := handover.NewController(&cfg, bootstrapper, presenter,
//	    handover.WithStore(kv),
//	    handover.WithHooks(hooks),
//	    handover.WithMetrics(handover.NewPrometheusMetrics(prometheus.DefaultRegisterer, "handover")),
//	)
//
// See cmd/handoverd for a complete service.
package handover
