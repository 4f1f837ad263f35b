package types

// Version is the canonical project version.
// The CLI, the JSON-RPC surface and completion events all report this version.
const Version = "0.3.0"

// EventContractVersion is the version of the completion event payload.
// It moves in lockstep with Version.
const EventContractVersion = Version
