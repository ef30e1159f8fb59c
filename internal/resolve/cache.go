package resolve

// rewriteKey identifies a cached rewrite. With the legacy key the ruleset
// is left empty, so any ruleset hits the entry for the same address.
type rewriteKey struct {
	ruleset string
	address string
}

type rewriteSlot struct {
	valid  bool
	key    rewriteKey
	result string
}

func (s *rewriteSlot) get(key rewriteKey) (string, bool) {
	if s.valid && s.key == key {
		return s.result, true
	}
	return "", false
}

func (s *rewriteSlot) put(key rewriteKey, result string) {
	s.valid, s.key, s.result = true, key, result
}

type resolveKey struct {
	sender  string
	address string
}

type resolveSlot struct {
	valid bool
	key   resolveKey
	reply Reply
}

func (s *resolveSlot) get(key resolveKey) (Reply, bool) {
	if s.valid && s.key == key {
		return s.reply, true
	}
	return Reply{}, false
}

func (s *resolveSlot) put(key resolveKey, reply Reply) {
	s.valid, s.key, s.reply = true, key, reply
}

func (s *resolveSlot) clear() {
	*s = resolveSlot{}
}
