package imagecurate

import "sync"

// IndexStrategy selects how DuplicateIndex searches for near-duplicates.
type IndexStrategy string

const (
	// IndexLinear scans every entry in insertion order.
	IndexLinear IndexStrategy = "linear"
	// IndexBKTree searches a BK-tree while all fingerprints share one length,
	// and falls back to the linear scan otherwise. Results are identical.
	IndexBKTree IndexStrategy = "bktree"
)

// IndexEntry is a fingerprint and the asset it represents.
type IndexEntry struct {
	Fingerprint Fingerprint
	AssetID     string
	seq         int
}

// Match is the earliest-inserted entry within the similarity threshold.
type Match struct {
	Entry    IndexEntry
	Distance int
}

// DuplicateIndex is an append-only store of accepted fingerprints owned by a
// single run. Insertion order decides which asset counts as the original.
// It is safe for concurrent use, but callers that need reproducible results
// must serialize Lookup/Insert in a fixed asset order.
type DuplicateIndex struct {
	mu        sync.Mutex
	threshold int
	strategy  IndexStrategy
	entries   []IndexEntry
	tree      *bkNode
	width     int  // common fingerprint length while the tree is valid
	mixed     bool // a fingerprint of another length was inserted
}

// NewDuplicateIndex returns an empty index. threshold is the maximum Hamming
// distance treated as a duplicate; negative values mean exact matches only.
func NewDuplicateIndex(threshold int, strategy IndexStrategy) *DuplicateIndex {
	if strategy == "" {
		strategy = IndexBKTree
	}
	return &DuplicateIndex{threshold: max(threshold, 0), strategy: strategy}
}

// Len returns the number of indexed fingerprints.
func (d *DuplicateIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Entries returns a copy of the entries in insertion order.
func (d *DuplicateIndex) Entries() []IndexEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]IndexEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Lookup returns the first entry, in insertion order, whose distance to fp is
// within the threshold.
func (d *DuplicateIndex) Lookup(fp Fingerprint) (Match, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookupLocked(fp)
}

// Insert appends fp for assetID.
func (d *DuplicateIndex) Insert(fp Fingerprint, assetID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.insertLocked(fp, assetID)
}

// CheckAndInsert looks fp up and inserts it when no duplicate exists, as one
// atomic step. It reports the matching original when fp is a duplicate.
func (d *DuplicateIndex) CheckAndInsert(fp Fingerprint, assetID string) (Match, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m, ok := d.lookupLocked(fp); ok {
		return m, true
	}
	d.insertLocked(fp, assetID)
	return Match{}, false
}

func (d *DuplicateIndex) lookupLocked(fp Fingerprint) (Match, bool) {
	if d.useTree(fp) {
		return d.tree.nearestEarliest(fp, d.threshold)
	}
	for _, e := range d.entries {
		if dist := HammingDistance(fp, e.Fingerprint); dist <= d.threshold {
			return Match{Entry: e, Distance: dist}, true
		}
	}
	return Match{}, false
}

func (d *DuplicateIndex) insertLocked(fp Fingerprint, assetID string) {
	e := IndexEntry{Fingerprint: fp, AssetID: assetID, seq: len(d.entries)}
	d.entries = append(d.entries, e)

	if d.strategy != IndexBKTree || d.mixed {
		return
	}
	if d.tree == nil {
		d.width = len(fp)
		d.tree = newBKNode(e)
		return
	}
	if len(fp) != d.width {
		// Truncated distances are not a metric; the tree is no longer valid.
		d.mixed = true
		d.tree = nil
		return
	}
	d.tree.add(e)
}

// useTree reports whether the BK-tree may answer a lookup for fp.
func (d *DuplicateIndex) useTree(fp Fingerprint) bool {
	return d.strategy == IndexBKTree && !d.mixed && d.tree != nil && len(fp) == d.width
}

type bkNode struct {
	entry    IndexEntry
	children map[int]*bkNode
}

func newBKNode(e IndexEntry) *bkNode {
	return &bkNode{entry: e, children: make(map[int]*bkNode)}
}

func (n *bkNode) add(e IndexEntry) {
	cur := n
	for {
		dist := HammingDistance(cur.entry.Fingerprint, e.Fingerprint)
		next := cur.children[dist]
		if next == nil {
			cur.children[dist] = newBKNode(e)
			return
		}
		cur = next
	}
}

// nearestEarliest collects every entry within radius and returns the one
// inserted first, matching the linear scan.
func (n *bkNode) nearestEarliest(fp Fingerprint, radius int) (Match, bool) {
	var best Match
	found := false

	candidates := []*bkNode{n}
	for len(candidates) > 0 {
		cand := candidates[0]
		candidates = candidates[1:]

		dist := HammingDistance(cand.entry.Fingerprint, fp)
		if dist <= radius && (!found || cand.entry.seq < best.Entry.seq) {
			best = Match{Entry: cand.entry, Distance: dist}
			found = true
		}

		low, high := dist-radius, dist+radius
		for d, child := range cand.children {
			if d >= low && d <= high {
				candidates = append(candidates, child)
			}
		}
	}
	return best, found
}
