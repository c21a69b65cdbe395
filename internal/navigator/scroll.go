package navigator

// SetViewport sets how many rows the renderer can show and scrolls so the
// highlighted row stays visible.
func (n *Navigator) SetViewport(rows int) {
	if rows < 1 {
		rows = 1
	}
	n.rows = rows
	n.ensureVisible()
}

// Window returns the half-open range of rows to render.
func (n *Navigator) Window() (start, end int) {
	count := n.Len()
	if n.rows <= 0 {
		return 0, count
	}
	start = n.offset
	end = start + n.rows
	if end > count {
		end = count
	}
	return start, end
}

func (n *Navigator) ensureVisible() {
	// Don't adjust offset if size hasn't been set yet
	if n.rows <= 0 {
		return
	}
	if n.highlighted < n.offset {
		n.offset = n.highlighted
	}
	if n.highlighted >= n.offset+n.rows {
		n.offset = n.highlighted - n.rows + 1
	}
}

// Highlight moves the highlight to row i of the list in view.
func (n *Navigator) Highlight(i int) {
	if i < 0 || i >= n.Len() {
		return
	}
	n.highlighted = i
	n.ensureVisible()
}
