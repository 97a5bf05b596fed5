package state

import (
	"github.com/jdziat/swipe-sync/pkg/core"
)

// MergePending reconciles local records with a server snapshot of the same
// collection. Local records still pending sync are kept, in local order,
// followed by every server record whose job has no pending local record.
// Confirmed local records are superseded by the server snapshot.
//
// queued names jobs with an undelivered action against this collection.
// Their local state is authoritative whether or not a local record exists,
// so a queued removal is not undone by a server snapshot taken before it
// was delivered.
func MergePending(local, server []core.Record, queued ...string) []core.Record {
	owned := make(map[string]bool, len(queued))
	for _, id := range queued {
		owned[id] = true
	}

	kept := make(map[string]bool)
	out := make([]core.Record, 0, len(local)+len(server))
	for _, r := range local {
		if (!r.PendingSync && !owned[r.JobID]) || kept[r.JobID] {
			continue
		}
		kept[r.JobID] = true
		out = append(out, r.Clone())
	}

	seen := make(map[string]bool, len(server))
	for _, r := range server {
		if kept[r.JobID] || owned[r.JobID] || seen[r.JobID] {
			continue
		}
		seen[r.JobID] = true
		rec := r.Clone()
		rec.PendingSync = false
		out = append(out, rec)
	}
	return out
}
