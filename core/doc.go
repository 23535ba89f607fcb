// Package core contains the bulk mutation engine: change planning, result
// aggregation, run auditing and the contracts the engine needs from its
// collaborators. Transport, storage and provider adapters depend on this
// package; core must not depend on them.
package core
