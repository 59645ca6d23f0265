package domain

// ApplyDrag computes the board state after a completed drag gesture together
// with the position writes needed to persist the new order. The input board
// is never mutated. Gestures that cannot be applied against the current
// snapshot (nil destination, unknown container, out-of-range index) return
// the input board and no updates; the snapshot they were computed against is
// simply stale and the next reconcile converges.
func ApplyDrag(b Board, ev DragEvent) (Board, []PositionUpdate) {
	if ev.Destination == nil {
		return b, nil
	}
	switch ev.Kind {
	case KindList:
		return moveList(b, ev.Source.Index, ev.Destination.Index)
	case KindTask:
		return moveTask(b, ev.Source.ContainerID, ev.Source.Index, ev.Destination.ContainerID, ev.Destination.Index)
	default:
		return b, nil
	}
}

// moveList splices the list at index from out of the board and back in at
// index to. Updates carry only the lists whose position actually changed.
func moveList(b Board, from, to int) (Board, []PositionUpdate) {
	n := len(b.Lists)
	if from < 0 || from >= n || to < 0 || to >= n {
		return b, nil
	}
	next := b.Clone()
	moved := next.Lists[from]
	rest := append(next.Lists[:from], next.Lists[from+1:]...)
	next.Lists = append(rest[:to], append([]TaskList{moved}, rest[to:]...)...)

	var updates []PositionUpdate
	for i := range next.Lists {
		if next.Lists[i].Position == i {
			continue
		}
		next.Lists[i].Position = i
		updates = append(updates, PositionUpdate{Kind: KindList, ID: next.Lists[i].ID, Position: i})
	}
	return next, updates
}

// moveTask splices a task out of its source list and into the destination
// list. The destination list is re-persisted wholesale, positions 0..n-1.
// The source list, when different, only emits updates for tasks whose
// position shifted.
func moveTask(b Board, srcListID string, srcIdx int, dstListID string, dstIdx int) (Board, []PositionUpdate) {
	si := b.FindList(srcListID)
	di := b.FindList(dstListID)
	if si < 0 || di < 0 {
		return b, nil
	}
	if srcIdx < 0 || srcIdx >= len(b.Lists[si].Tasks) {
		return b, nil
	}
	// Valid insertion points run through one past the end of the
	// destination, post removal when source and destination coincide.
	dstMax := len(b.Lists[di].Tasks)
	if si == di {
		dstMax--
	}
	if dstIdx < 0 || dstIdx > dstMax {
		return b, nil
	}

	next := b.Clone()
	src := &next.Lists[si]
	dst := &next.Lists[di]

	moved := src.Tasks[srcIdx]
	src.Tasks = append(src.Tasks[:srcIdx], src.Tasks[srcIdx+1:]...)
	moved.ListID = dst.ID
	dst.Tasks = append(dst.Tasks[:dstIdx], append([]Task{moved}, dst.Tasks[dstIdx:]...)...)

	updates := make([]PositionUpdate, 0, len(dst.Tasks))
	for i := range dst.Tasks {
		dst.Tasks[i].Position = i
		updates = append(updates, PositionUpdate{Kind: KindTask, ID: dst.Tasks[i].ID, Position: i, ListID: dst.ID})
	}
	if si != di {
		for i := range src.Tasks {
			if src.Tasks[i].Position == i {
				continue
			}
			src.Tasks[i].Position = i
			updates = append(updates, PositionUpdate{Kind: KindTask, ID: src.Tasks[i].ID, Position: i, ListID: src.ID})
		}
	}
	return next, updates
}
