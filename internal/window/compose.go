package window

import "time"

// ResolveChild derives a child occurrence from its parent's. The result is not
// reordered: an end at or before the start is an empty window.
func ResolveChild(parent ResolvedWindow, cfg ChildConfig) ResolvedWindow {
	return ResolvedWindow{
		Start: anchor(parent, cfg.StartAnchor).Add(cfg.StartOffset),
		End:   anchor(parent, cfg.EndAnchor).Add(cfg.EndOffset),
	}
}

func anchor(w ResolvedWindow, a Anchor) time.Time {
	if a == ParentEnd {
		return w.End
	}
	return w.Start
}
