package nexus

// SendBridgeMessage posts text, originating as a reply to parent (an id
// on the origin platform, typically the message that triggered a
// command), to both platforms at once. The counterpart parent id is
// resolved via the store before either post is submitted, so a reply
// threads correctly on both sides.
func (n *Nexus) SendBridgeMessage(origin Platform, parent, text string) {
	n.store.WatchID(origin, parent, func(other string) {
		var euphoriaParent, instantParent string
		if origin == Euphoria {
			euphoriaParent, instantParent = parent, other
		} else {
			euphoriaParent, instantParent = other, parent
		}
		n.scheduler.AddNow(func() { n.doSend(euphoriaParent, instantParent, text) })
	})
}

// doSend actually submits text on both platforms and records the
// resulting id pair once both acknowledgements arrive. Every callback
// here is re-marshalled onto the scheduler goroutine, so the two
// acknowledgement paths never race with each other.
func (n *Nexus) doSend(euphoriaParent, instantParent, text string) {
	var eID, iID string
	var eDone, iDone bool
	recordIfComplete := func() {
		if eDone && iDone {
			if err := n.AddMapping(eID, iID); err != nil {
				n.log.WithError(err).Warn("could not record bridge message mapping")
			}
		}
	}

	if euphoriaBot := n.euphoria(); euphoriaBot != nil {
		euphoriaBot.SubmitPost(euphoriaParent, text, n.sequence(), func(id string) {
			n.scheduler.AddNow(func() {
				eID, eDone = id, true
				recordIfComplete()
			})
		})
	}
	if instantBot := n.instant(); instantBot != nil {
		instantBot.SubmitPost(instantParent, text, n.sequence(), func(id string) {
			n.scheduler.AddNow(func() {
				iID, iDone = id, true
				recordIfComplete()
			})
		})
	}
}
