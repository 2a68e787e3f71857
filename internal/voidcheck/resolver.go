package voidcheck

// Resolve matches q against snap.
//
// With both an id and a name, the record at that id must also carry the name as
// its handle. With only an id, the record at that id is returned. With only a
// name, records are scanned in discovery order and each is checked against its
// handle, display name, nickname and alias, in that order; the first hit wins.
func Resolve(snap *Snapshot, q Query) (Identity, bool) {
	q = q.Normalized()
	switch {
	case q.UserID != "" && q.Name != "":
		identity, ok := snap.Get(q.UserID)
		if !ok || identity.Handle != q.Name {
			return Identity{}, false
		}
		return identity, true
	case q.UserID != "":
		return snap.Get(q.UserID)
	case q.Name != "":
		for _, identity := range snap.Identities() {
			if identity.matchesName(q.Name) {
				return identity, true
			}
		}
	}
	return Identity{}, false
}

func (i Identity) matchesName(name string) bool {
	for _, field := range [...]string{i.Handle, i.DisplayName, i.Nickname, i.Alias} {
		if field != "" && field == name {
			return true
		}
	}
	return false
}
