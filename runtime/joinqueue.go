package runtime

import "github.com/openrobo/openrobo/message"

// JoinQueue implements the Return/Wait rendezvous of §4.7: two FIFO
// lists of cloned messages keyed by #subject. It lives on the main
// thread and is touched only by the dispatcher goroutine.
type JoinQueue struct {
	returnList []*message.Message
	waitList   []*message.Message
}

func newJoinQueue() *JoinQueue {
	return &JoinQueue{}
}

func subjectOf(m *message.Message) string {
	subject, _ := m.Subject()
	return subject
}

// StoreReturn implements "storing a Return" (§4.7): if a waiter for
// this subject is already queued, it is removed and returned (matched)
// so the caller can forward ret to its #src; otherwise ret is cloned
// onto returnList for a future Wait to claim.
func (q *JoinQueue) StoreReturn(ret *message.Message) (waiter *message.Message, matched bool) {
	subject := subjectOf(ret)
	for i, w := range q.waitList {
		if subjectOf(w) == subject {
			q.waitList = append(q.waitList[:i], q.waitList[i+1:]...)
			return w, true
		}
	}
	q.returnList = append(q.returnList, ret.Clone())
	return nil, false
}

// EnqueueWait implements "enqueuing a Wait" (§4.7), used for both an
// explicit Wait message and the implicit Wait a Start pushes onto the
// wait-list (§9): if a Return for this subject is already queued, it is
// removed and returned (matched) so the caller can forward it to wait's
// #src; otherwise wait is cloned onto waitList.
func (q *JoinQueue) EnqueueWait(wait *message.Message) (storedReturn *message.Message, matched bool) {
	subject := subjectOf(wait)
	for i, r := range q.returnList {
		if subjectOf(r) == subject {
			q.returnList = append(q.returnList[:i], q.returnList[i+1:]...)
			return r, true
		}
	}
	q.waitList = append(q.waitList, wait.Clone())
	return nil, false
}

// Empty reports whether both lists are empty (§8: "at steady state both
// lists are empty").
func (q *JoinQueue) Empty() bool {
	return len(q.returnList) == 0 && len(q.waitList) == 0
}

// Depths returns the current length of each list, for admin introspection.
func (q *JoinQueue) Depths() (returnDepth, waitDepth int) {
	return len(q.returnList), len(q.waitList)
}
