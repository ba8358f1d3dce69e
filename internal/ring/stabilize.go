package ring

import (
	"context"
	"time"

	"distributed-kvstore/internal/idspace"
)

// Ts is T_s, the interval between runs of each periodic maintenance task.
const Ts = 1 * time.Second

// RunMaintenance starts stabilize, fix_fingers, check_predecessor, and
// fix_successor_list as independent goroutines, each on its own ticker, and
// returns immediately; the goroutines exit when ctx is cancelled. Each iteration completes (or the RPCs it
// makes time out via T_rpc) before the next tick fires — periodic tasks
// never overlap themselves.
func (n *Node) RunMaintenance(ctx context.Context) {
	go n.loop(ctx, Ts, n.Stabilize)
	go n.loop(ctx, Ts, n.FixFingers)
	go n.loop(ctx, Ts, n.CheckPredecessor)
	go n.loop(ctx, Ts, n.FixSuccessorList)
}

func (n *Node) loop(ctx context.Context, interval time.Duration, task func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

// Stabilize asks the successor for its predecessor and successor list,
// adopts a closer successor/predecessor if one surfaced, refreshes the
// successor list, recomputes every finger, and notifies the (possibly new)
// successor that we exist. On any failure reaching the successor it falls
// back to the next entry in the successor list.
func (n *Node) Stabilize(ctx context.Context) {
	n.mu.RLock()
	succAddr := n.successor.Addr
	selfNumeric := n.self.Numeric
	succNumeric := n.successor.Numeric
	predNumeric := n.predecessor
	n.mu.RUnlock()

	pred, succList, ok := n.remoteGetPredAndSuccList(succAddr)
	if !ok {
		n.demoteSuccessor()
		return
	}

	n.mu.Lock()
	if pred != nil && idspace.Between(pred.Numeric, selfNumeric, succNumeric, false, false, n.space.N) {
		n.successor = *pred
		if len(n.fingers) > 0 {
			n.fingers[0] = *pred
		}
	}
	if pred != nil && pred.Addr != n.self.Addr &&
		(predNumeric == nil || idspace.Between(pred.Numeric, predNumeric.Numeric, selfNumeric, false, false, n.space.N)) {
		p := *pred
		n.predecessor = &p
	}

	newSuccessors := make([]NodeRecord, 0, SuccessorListLen)
	newSuccessors = append(newSuccessors, n.successor)
	for i := 0; i < len(succList) && len(newSuccessors) < SuccessorListLen; i++ {
		newSuccessors = append(newSuccessors, succList[i])
	}
	n.successors = newSuccessors
	successor := n.successor
	n.mu.Unlock()

	for i := range n.Fingers() {
		target := n.space.FingerTarget(selfNumeric, i)
		if rec, found := n.FindSuccessor(ctx, target); found {
			n.mu.Lock()
			if i < len(n.fingers) {
				n.fingers[i] = rec
			}
			n.mu.Unlock()
		}
	}

	n.remoteNotify(successor.Addr, n.self)
}

func (n *Node) demoteSuccessor() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.successors) > 0 {
		n.successors = n.successors[1:]
	}
	if len(n.successors) == 0 {
		n.successors = append(n.successors, n.self)
	}
	n.successor = n.successors[0]
}

// FixFingers recomputes one finger table entry per tick, advancing a
// rolling cursor. This complements Stabilize's bulk refresh and smooths
// load when the ring is large.
func (n *Node) FixFingers(ctx context.Context) {
	n.mu.Lock()
	if len(n.fingers) == 0 {
		n.mu.Unlock()
		return
	}
	n.next = (n.next + 1) % len(n.fingers)
	idx := n.next
	selfNumeric := n.self.Numeric
	n.mu.Unlock()

	target := n.space.FingerTarget(selfNumeric, idx)
	rec, found := n.FindSuccessor(ctx, target)
	if !found {
		return
	}
	n.mu.Lock()
	if idx < len(n.fingers) {
		n.fingers[idx] = rec
	}
	n.mu.Unlock()
}

// CheckPredecessor pings the current predecessor and clears it on failure;
// a future Stabilize/Notify elsewhere in the ring will repopulate it.
func (n *Node) CheckPredecessor(ctx context.Context) {
	n.mu.RLock()
	pred := n.predecessor
	n.mu.RUnlock()

	if pred == nil {
		return
	}
	if !n.remotePing(pred.Addr) {
		n.mu.Lock()
		n.predecessor = nil
		n.mu.Unlock()
	}
}

// FixSuccessorList validates every non-primary entry in the successor
// list, replacing it with the primary successor if it does not lie in
// (self, successor) and otherwise replacing it with whatever that peer
// resolves find_successor(self) to.
func (n *Node) FixSuccessorList(ctx context.Context) {
	n.mu.RLock()
	selfNumeric := n.self.Numeric
	successor := n.successor
	successors := make([]NodeRecord, len(n.successors))
	copy(successors, n.successors)
	n.mu.RUnlock()

	if successor.empty() {
		return
	}

	for i := 1; i < len(successors); i++ {
		entry := successors[i]
		if entry.empty() {
			continue
		}
		if !idspace.Between(entry.Numeric, selfNumeric, successor.Numeric, false, false, n.space.N) {
			successors[i] = successor
			continue
		}
		found, next, err := n.remoteFindSuccessor(entry.Addr, selfNumeric)
		if err != nil || !found {
			continue
		}
		successors[i] = next
	}

	n.mu.Lock()
	n.successors = successors
	n.mu.Unlock()
}
