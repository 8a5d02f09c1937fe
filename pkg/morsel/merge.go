// Copyright 2025 Certen Protocol
//
// Merge (§4.10 C10): combine a non-empty set of morsels into one, after
// checking every pair's overlapping row-numbers agree on H(rn) and at
// least one row-number is shared. The result declares the authority's
// (hi_rn, hi_hash) — the input with the largest hi_rn, ties broken by
// full-row count — and unions every row/source/crumtrail across all
// inputs, preferring a full row over a reference row on conflict. This
// union-of-leaves shape (rather than an order-sensitive fold) is what
// makes Merge(Merge(A,B),C) and Merge(A,Merge(B,C)) agree: each
// intermediate result already contains the full spread of its own
// inputs, so merging it again with a third just unions the same total
// set regardless of how the calls are grouped.
package morsel

// Merge combines morsels, which must be non-empty, per §4.10.
func Merge(morsels []*Morsel) (*Morsel, error) {
	if len(morsels) == 0 {
		return nil, &NotMergeableError{Reason: "no morsels supplied"}
	}
	if len(morsels) == 1 {
		return morsels[0].Clone(), nil
	}

	for i := 0; i < len(morsels); i++ {
		for j := i + 1; j < len(morsels); j++ {
			if err := checkPairwise(morsels[i], morsels[j]); err != nil {
				return nil, err
			}
		}
	}

	authority := morsels[0]
	for _, m := range morsels[1:] {
		if isBetterAuthority(m, authority) {
			authority = m
		}
	}

	out := newEmpty()
	out.HiRN = authority.HiRN
	out.HiHash = authority.HiHash
	out.Meta = authority.Meta
	out.BuildID = authority.BuildID
	if authority.Asset != nil {
		out.Asset = append([]byte(nil), authority.Asset...)
		out.AssetHash = authority.AssetHash
		out.AssetRN = authority.AssetRN
		out.AssetCol = authority.AssetCol
	}

	for _, m := range morsels {
		unionRows(out, m, m == authority)
		unionSources(out, m, m == authority)
		unionTrails(out, m, m == authority)
		if out.Asset == nil && m.Asset != nil {
			out.Asset = append([]byte(nil), m.Asset...)
			out.AssetHash = m.AssetHash
			out.AssetRN = m.AssetRN
			out.AssetCol = m.AssetCol
		}
	}

	if err := Verify(out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkPairwise verifies that a and b, where they name the same row
// number, agree on its row-hash, and that they name at least one row
// number in common.
func checkPairwise(a, b *Morsel) error {
	common := false
	for rn, ea := range a.Rows {
		eb, ok := b.Rows[rn]
		if !ok {
			continue
		}
		common = true
		if !ea.Hash.Equal(eb.Hash) {
			return &HashConflictError{RN: rn}
		}
	}
	if !common {
		return &NoCommonAncestorError{}
	}
	return nil
}

// isBetterAuthority reports whether candidate should replace current as
// the merge's authority: larger hi_rn wins; ties broken by number of
// full rows carried; remaining ties keep current (arbitrary but stable).
func isBetterAuthority(candidate, current *Morsel) bool {
	if candidate.HiRN != current.HiRN {
		return candidate.HiRN > current.HiRN
	}
	return fullRowCount(candidate) > fullRowCount(current)
}

func fullRowCount(m *Morsel) int {
	n := 0
	for _, e := range m.Rows {
		if e.IsFull() {
			n++
		}
	}
	return n
}

func unionRows(out *Morsel, m *Morsel, isAuthority bool) {
	for rn, e := range m.Rows {
		existing, ok := out.Rows[rn]
		if !ok {
			out.Rows[rn] = e
			continue
		}
		if !existing.IsFull() && e.IsFull() {
			out.Rows[rn] = e
		} else if isAuthority && existing.IsFull() == e.IsFull() {
			out.Rows[rn] = e
		}
	}
}

func unionSources(out *Morsel, m *Morsel, isAuthority bool) {
	for rn, s := range m.Sources {
		if _, ok := out.Sources[rn]; !ok || isAuthority {
			out.Sources[rn] = s
		}
	}
}

func unionTrails(out *Morsel, m *Morsel, isAuthority bool) {
	for rn, t := range m.Trails {
		if _, ok := out.Trails[rn]; !ok || isAuthority {
			out.Trails[rn] = t
		}
	}
}
