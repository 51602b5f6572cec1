package objbridge

import (
	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/objbridge/internal/guest"
)

// capsuleTag marks guest capsules whose payload is a preserved host value,
// distinguishing them from ordinary capsules.
const capsuleTag = "host_object"

// newHostCapsule boxes a host value into a guest capsule. The value is
// anchored in the precious registry for the capsule's lifetime; the
// registered destructor releases the anchor, redirecting itself through the
// cross-thread dispatcher when the final reference drop happens off the
// owning goroutine. A destructor firing during guest reference-count
// teardown on an arbitrary goroutine must never touch host-owned state
// directly.
func (b *Bridge) newHostCapsule(v Value) *guest.Object {
	tok := b.precious.preserve(v)
	return b.rt.NewCapsule(capsuleTag, tok, func(cap *guest.Object) {
		err := b.queue.ScheduleRelease(func() {
			b.precious.release(tok)
		})
		if err != nil {
			b.log.Error("abandoned release of preserved host value",
				zap.Uint64("token", uint64(tok)),
				zap.Error(err))
		}
	})
}

// unwrapHostCapsule returns the preserved host value boxed in cap. The
// second result is false when cap is not a bridge capsule or its anchor is
// already gone.
func (b *Bridge) unwrapHostCapsule(cap *guest.Object) (Value, bool) {
	if !guest.IsCapsule(cap, capsuleTag) {
		return Value{}, false
	}
	tok, ok := cap.CapsulePointer().(preciousToken)
	if !ok {
		return Value{}, false
	}
	return b.precious.lookup(tok)
}
