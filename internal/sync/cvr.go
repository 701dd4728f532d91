package sync

import (
	"sort"

	"github.com/printhaus/backend/internal/domain"
)

// ClientDomain is the pseudo-domain under which the CVR tracks each client's
// lastMutationId. It never appears in patch keys; its diff drives the
// lastMutationIDChanges acknowledgements instead.
const ClientDomain = "client"

// CVR maps domain name to row id to row version. It is a snapshot of exactly
// what one client group has been sent.
type CVR map[string]map[string]int64

// BaseCVR returns the empty record a client group starts from: every synced
// domain present with no entries.
func BaseCVR() CVR {
	record := CVR{ClientDomain: {}}
	for _, name := range domain.SyncedDomains() {
		record[string(name)] = map[string]int64{}
	}
	return record
}

// BuildEntries collapses metadata into a CVR domain record, deduping by id.
// Duplicates should not occur given the query layer's uniqueness contract,
// but a duplicate must not crash: last write wins.
func BuildEntries(metadata []domain.Metadata) map[string]int64 {
	entries := make(map[string]int64, len(metadata))
	for _, m := range metadata {
		entries[m.ID] = m.RowVersion
	}
	return entries
}

// DiffEntry lists the row ids to send (puts) and retract (dels) for one domain.
type DiffEntry struct {
	Puts []string
	Dels []string
}

// Diff maps domain name to its put/del sets.
type Diff map[string]DiffEntry

// DiffCVR compares two CVRs. An id is a put when it is new in next or its
// version strictly increased; equal versions are not re-sent and a version
// moving backward diffs as a no-op. An id is a del when it left the visible
// set entirely. Pure function: no store access.
func DiffCVR(prev, next CVR) Diff {
	names := make(map[string]struct{}, len(prev)+len(next))
	for name := range prev {
		names[name] = struct{}{}
	}
	for name := range next {
		names[name] = struct{}{}
	}

	diff := make(Diff, len(names))
	for name := range names {
		prevEntries := prev[name]
		nextEntries := next[name]

		entry := DiffEntry{Puts: []string{}, Dels: []string{}}
		for id, version := range nextEntries {
			prevVersion, ok := prevEntries[id]
			if !ok || prevVersion < version {
				entry.Puts = append(entry.Puts, id)
			}
		}
		for id := range prevEntries {
			if _, ok := nextEntries[id]; !ok {
				entry.Dels = append(entry.Dels, id)
			}
		}
		sort.Strings(entry.Puts)
		sort.Strings(entry.Dels)
		diff[name] = entry
	}
	return diff
}

// IsEmpty reports whether no domain has puts or dels. The pull fast-path
// skips writing a new CVR when true.
func (d Diff) IsEmpty() bool {
	for _, entry := range d {
		if len(entry.Puts) > 0 || len(entry.Dels) > 0 {
			return false
		}
	}
	return true
}
