package engine

// resolve settles what prev left pending against the current state and
// carries the rest into next. With next == nil this is the final pass and
// anything unresolved is dropped. It returns false when a prophecy turns out
// to be violated; the universe must stop immediately.
func (u *universe) resolve(prev, next *LedgerEntry) bool {
	for _, p := range prev.Prophecies {
		want, known := p.Expected.Evaluate(u.env)
		if known {
			if got, reached := u.env.Resolve(p.Target.Name, p.Target.Index); reached {
				if !got.Equal(want) {
					u.trace(p.Line, "Prophecy violated: (%s = %s) ≠ %s", p.Target, got, want)
					return false
				}
				continue
			}
		}
		if next != nil {
			carried := p
			carried.Expected = Deferred{Expr: p.Expected.Expr, Value: want, Known: known}
			next.Prophecies = append(next.Prophecies, carried)
		}
	}

	for _, r := range prev.Revisions {
		val, ok := r.Right.Evaluate(u.env)
		if ok {
			u.fork(r, val)
			continue
		}
		if next != nil {
			next.Revisions = append(next.Revisions, r)
		}
	}

	for _, d := range prev.Debugs {
		val, ok := d.Expr.Evaluate(u.env)
		if ok {
			u.channel(d.Line, "now known: %s = %s", d.Expr, val)
			continue
		}
		if next != nil {
			next.Debugs = append(next.Debugs, d)
		}
	}
	return true
}
