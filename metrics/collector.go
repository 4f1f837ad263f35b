// Package metrics provides broker-wide counters.
//
// The Collector is a leaf package with no internal dependencies. Components
// receive a *Collector and call its Inc methods; a nil *Collector is valid
// and records nothing, so tests can construct components without one.
package metrics

import "sync"

// Operation names used as the per-operation counter key.
const (
	OpGetFile = "get_file"
	OpConvert = "convert"
	OpUpload  = "upload"
	OpJoin    = "join"
)

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Public operations, keyed by operation name
	OpsStarted   map[string]int64
	OpsSucceeded map[string]int64
	OpsFailed    map[string]int64
	AuthFailures int64

	// Engine
	EngineDialAttempts   int64
	EngineDialFailures   int64
	EngineConnectionLost int64
	EngineSessions       int64
	EngineCloseFailures  int64

	// Merge
	MergePasses  int64
	MergeBatches int64

	// Spool
	SpoolChunksWritten    int64
	SpoolEntriesFinalized int64
	MirrorUploadSuccess   int64
	MirrorUploadFailure   int64

	// Completion events
	EventsPublished     int64
	EventPublishFailure int64

	// Dimensions (informational, set at construction)
	InstanceID string
	EngineAddr string
}

// Collector accumulates broker counters for the lifetime of the process.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	opsStarted   map[string]int64
	opsSucceeded map[string]int64
	opsFailed    map[string]int64
	authFailures int64

	engineDialAttempts   int64
	engineDialFailures   int64
	engineConnectionLost int64
	engineSessions       int64
	engineCloseFailures  int64

	mergePasses  int64
	mergeBatches int64

	spoolChunksWritten    int64
	spoolEntriesFinalized int64
	mirrorUploadSuccess   int64
	mirrorUploadFailure   int64

	eventsPublished     int64
	eventPublishFailure int64

	instanceID string
	engineAddr string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(instanceID, engineAddr string) *Collector {
	return &Collector{
		opsStarted:   make(map[string]int64),
		opsSucceeded: make(map[string]int64),
		opsFailed:    make(map[string]int64),
		instanceID:   instanceID,
		engineAddr:   engineAddr,
	}
}

func (c *Collector) add(fn func()) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}

// --- Public operations ---

// IncOpStarted records the start of a public operation.
func (c *Collector) IncOpStarted(op string) { c.add(func() { c.opsStarted[op]++ }) }

// IncOpSucceeded records a public operation that returned a result.
func (c *Collector) IncOpSucceeded(op string) { c.add(func() { c.opsSucceeded[op]++ }) }

// IncOpFailed records a public operation that returned an error.
func (c *Collector) IncOpFailed(op string) { c.add(func() { c.opsFailed[op]++ }) }

// IncAuthFailure records rejected credentials.
func (c *Collector) IncAuthFailure() { c.add(func() { c.authFailures++ }) }

// --- Engine ---

// IncEngineDialAttempt records one connection attempt to the engine.
func (c *Collector) IncEngineDialAttempt() { c.add(func() { c.engineDialAttempts++ }) }

// IncEngineDialFailure records a failed connection attempt.
func (c *Collector) IncEngineDialFailure() { c.add(func() { c.engineDialFailures++ }) }

// IncEngineConnectionLost records a connected engine dropping mid-call.
func (c *Collector) IncEngineConnectionLost() { c.add(func() { c.engineConnectionLost++ }) }

// IncEngineSession records a document session opened on the engine.
func (c *Collector) IncEngineSession() { c.add(func() { c.engineSessions++ }) }

// IncEngineCloseFailure records a failed document close.
func (c *Collector) IncEngineCloseFailure() { c.add(func() { c.engineCloseFailures++ }) }

// --- Merge ---

// IncMergePass records one reduction pass over the work-list.
func (c *Collector) IncMergePass() { c.add(func() { c.mergePasses++ }) }

// AddMergeBatches records n merged batches.
func (c *Collector) AddMergeBatches(n int) { c.add(func() { c.mergeBatches += int64(n) }) }

// --- Spool ---

// IncSpoolChunk records one appended upload chunk.
func (c *Collector) IncSpoolChunk() { c.add(func() { c.spoolChunksWritten++ }) }

// IncSpoolFinalized records one in-progress entry renamed to finalized.
func (c *Collector) IncSpoolFinalized() { c.add(func() { c.spoolEntriesFinalized++ }) }

// IncMirrorUploadSuccess records a finalized entry copied to the mirror.
func (c *Collector) IncMirrorUploadSuccess() { c.add(func() { c.mirrorUploadSuccess++ }) }

// IncMirrorUploadFailure records a failed mirror copy.
func (c *Collector) IncMirrorUploadFailure() { c.add(func() { c.mirrorUploadFailure++ }) }

// --- Completion events ---

// IncEventPublished records a delivered completion event.
func (c *Collector) IncEventPublished() { c.add(func() { c.eventsPublished++ }) }

// IncEventPublishFailure records an undeliverable completion event.
func (c *Collector) IncEventPublishFailure() { c.add(func() { c.eventPublishFailure++ }) }

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		OpsStarted:   copyCounts(c.opsStarted),
		OpsSucceeded: copyCounts(c.opsSucceeded),
		OpsFailed:    copyCounts(c.opsFailed),
		AuthFailures: c.authFailures,

		EngineDialAttempts:   c.engineDialAttempts,
		EngineDialFailures:   c.engineDialFailures,
		EngineConnectionLost: c.engineConnectionLost,
		EngineSessions:       c.engineSessions,
		EngineCloseFailures:  c.engineCloseFailures,

		MergePasses:  c.mergePasses,
		MergeBatches: c.mergeBatches,

		SpoolChunksWritten:    c.spoolChunksWritten,
		SpoolEntriesFinalized: c.spoolEntriesFinalized,
		MirrorUploadSuccess:   c.mirrorUploadSuccess,
		MirrorUploadFailure:   c.mirrorUploadFailure,

		EventsPublished:     c.eventsPublished,
		EventPublishFailure: c.eventPublishFailure,

		InstanceID: c.instanceID,
		EngineAddr: c.engineAddr,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
