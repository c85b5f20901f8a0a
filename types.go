package handover

import (
	"github.com/arloliu/handover/prefetch"
	"github.com/arloliu/handover/trigger"
	"github.com/arloliu/handover/types"
)

// Re-export types from the types package.
//
// This file provides the public API for the library's core types and
// interfaces. It uses type aliases to re-export definitions from the `types`
// subpackage, which every component depends on without depending on the root
// `handover` package.
type (
	State          = types.State
	VariantKind    = types.VariantKind
	Variant        = types.Variant
	Asset          = types.Asset
	Status         = types.Status
	Record         = types.Record
	Outcome        = types.Outcome
	Message        = types.Message
	MessageType    = types.MessageType
	HandoverState  = types.HandoverState
	NetworkInfo    = types.NetworkInfo
)

// Component configurations embedded in Config.
type (
	PrefetchConfig = prefetch.Config
	TriggerConfig  = trigger.Config
)

// Re-export interfaces from the types package for convenience.
type (
	Bootstrapper     = types.Bootstrapper
	Lifecycle        = types.Lifecycle
	Instance         = types.Instance
	Presenter        = types.Presenter
	Environment      = types.Environment
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export constants from the types package.
const (
	StateInit           = types.StateInit
	StateLiteRunning    = types.StateLiteRunning
	StateFullPreloading = types.StateFullPreloading
	StateFullReady      = types.StateFullReady
	StateSwitching      = types.StateSwitching
	StateFullRunning    = types.StateFullRunning
	StateShutdown       = types.StateShutdown

	VariantLite = types.VariantLite
	VariantFull = types.VariantFull

	MessageBuildReady   = types.MessageBuildReady
	MessageGameOver     = types.MessageGameOver
	MessageLevelReached = types.MessageLevelReached

	StatusIdle        = types.StatusIdle
	StatusPrefetching = types.StatusPrefetching
	StatusReady       = types.StatusReady
	StatusFailed      = types.StatusFailed
)
