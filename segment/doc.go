// Package segment defines the contract between the segment manager and the
// concrete segment implementations, plus the persistence and lifecycle
// plumbing those implementations share.
//
// Capabilities are small interfaces. A concrete segment declares what it can
// do by the methods it has; consumers type-assert the Implementation they get
// from the manager to the capability they need:
//
//	inst, err := mgr.GetInstance(ctx, seg)
//	if err != nil {
//	    return err
//	}
//	vr, ok := inst.(segment.VectorReader)
//	if !ok {
//	    return fmt.Errorf("%s has no vector capability", seg)
//	}
//
// # Persistence
//
// Every segment persists under segments/<segment-id>/ in the blob store:
//
//	segments/<id>/snapshot             compressed, checksummed full state
//	segments/<id>/journal/<last-seqid> one applied batch per blob
//
// A batch is journaled before it is applied in memory, so MaxSeqID survives
// re-instantiation: construction loads the snapshot and replays the journal
// entries past it. Flush writes a new snapshot and drops covered entries.
package segment
