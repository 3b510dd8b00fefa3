// Package engine implements the NS record lifecycle of the NFV manager.
//
// # Overview
//
// A Manager deploys network services on the orchestrator for experimenters,
// tracks the resulting NS records and tears them down again:
//
//  1. Validate - check a request against the catalog, the owner's uploads and the admission policies
//  2. Provide - import keys, create the descriptor and the record, track it
//  3. ReconcileOnce - refresh every non-terminal tracked record
//  4. Release - delete the record and its descriptor, stop tracking it
//
// # Deployment branches
//
// A request for a catalog entry whose package directory exists takes the
// catalog branch: every file in the directory is uploaded as a component and
// a descriptor is assembled from them. Any other request takes the user
// branch, where the owner's uploaded archive becomes the descriptor.
//
// Units are placed on sites through the request's testbed map. The key
// "ANY" binds every unit to every site named in the map:
//
//	{"ANY": ["fokus", "ericsson"]}  =>  u1: [vim-instance-fokus vim-instance-ericsson]
//	{"u1": "fokus"}                 =>  u1: [vim-instance-fokus]
//
// # Reconciliation
//
// The Reconciler sleeps its interval, then runs one cycle, and checks for a
// stop request only between cycles. Records in the active or error state
// are no longer polled. A record removed by Release while a cycle is
// running is never written back.
//
// # Errors
//
// Failures are EngineError values classified as validation, missing
// resource, delete, transient or permanent. Delete errors never reach the
// caller of Release; they are logged and returned in the ReleaseResult.
package engine
